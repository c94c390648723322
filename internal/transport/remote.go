package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/dockd/internal/dock"
	"github.com/nerrad567/dockd/internal/infrastructure/mqtt"
)

// DefaultTimeout applies when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Bus is the subset of the MQTT client the transport needs.
type Bus interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// Logger is the logging interface used by Remote.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Remote.
type Options struct {
	// Timeout bounds each request. Default: DefaultTimeout.
	Timeout time.Duration

	Logger Logger
}

// Remote implements the dock collaborators (Locker, Rebooter, LinkMonitor)
// as request/response calls to the USB I/O agent over MQTT.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Remote struct {
	bus     Bus
	timeout time.Duration
	logger  Logger

	mu      sync.Mutex
	pending map[string]chan Response
	started bool
}

var (
	_ dock.Locker      = (*Remote)(nil)
	_ dock.Rebooter    = (*Remote)(nil)
	_ dock.LinkMonitor = (*Remote)(nil)
)

// NewRemote creates a transport on bus. Call Start before use.
func NewRemote(bus Bus, opts Options) *Remote {
	r := &Remote{
		bus:     bus,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		pending: make(map[string]chan Response),
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	return r
}

// Start subscribes to transport replies.
func (r *Remote) Start() error {
	if err := r.bus.Subscribe(mqtt.Topics{}.AllTransportResponses(), r.bus.QoS(), r.handleResponse); err != nil {
		return fmt.Errorf("subscribing to transport responses: %w", err)
	}
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	return nil
}

// Stop unsubscribes and fails every outstanding call with ErrNotStarted.
func (r *Remote) Stop() error {
	r.mu.Lock()
	r.started = false
	for id, ch := range r.pending {
		close(ch)
		delete(r.pending, id)
	}
	r.mu.Unlock()

	return r.bus.Unsubscribe(mqtt.Topics{}.AllTransportResponses())
}

// Pending returns the number of calls awaiting a reply.
func (r *Remote) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Acquire opens dev on the agent. The returned lock releases it.
func (r *Remote) Acquire(ctx context.Context, dev *dock.Device) (dock.Lock, error) {
	resp, err := r.call(ctx, mqtt.OpAcquire, r.request(dev))
	if err != nil {
		return nil, err
	}
	return &remoteLock{remote: r, dev: dev, lockID: resp.LockID}, nil
}

// Reboot asks the agent to reboot controller.
func (r *Remote) Reboot(ctx context.Context, controller *dock.Device) error {
	_, err := r.call(ctx, mqtt.OpReboot, r.request(controller))
	return err
}

// LinkActive asks the agent whether the link behind controller is up.
func (r *Remote) LinkActive(ctx context.Context, controller *dock.Device) (bool, error) {
	resp, err := r.call(ctx, mqtt.OpLinkStatus, r.request(controller))
	if err != nil {
		return false, err
	}
	return resp.LinkActive, nil
}

func (r *Remote) request(dev *dock.Device) Request {
	return Request{
		DeviceID:  dev.ID(),
		Kind:      string(dev.Kind()),
		HubID:     hubOf(dev),
		VendorID:  dev.VendorID(),
		ProductID: dev.ProductID(),
	}
}

// hubOf returns the id of the hub dev hangs off, or "" when unknown.
// Devices composed from a hub carry its id from construction, so it is known
// before the controller is registered. Foreign devices inherit it from the
// nearest linked ancestor.
func hubOf(dev *dock.Device) string {
	for d := dev; d != nil; d = d.Parent() {
		if id := d.HubID(); id != "" {
			return id
		}
	}
	return ""
}

func (r *Remote) call(ctx context.Context, op string, req Request) (Response, error) {
	req.RequestID = uuid.NewString()
	req.Op = op

	ch := make(chan Response, 1)
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return Response{}, ErrNotStarted
	}
	r.pending[req.RequestID] = ch
	r.mu.Unlock()
	defer r.forget(req.RequestID)

	if err := r.bus.PublishJSON(mqtt.Topics{}.TransportRequest(op), req, false); err != nil {
		return Response{}, fmt.Errorf("%w: %s %s: %w", ErrPublishFailed, op, req.DeviceID, err)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, ErrNotStarted
		}
		if !resp.OK {
			return resp, fmt.Errorf("%w: %s %s: %s", ErrRejected, op, req.DeviceID, resp.Error)
		}
		r.logger.Debug("transport request complete", "op", op, "device", req.DeviceID)
		return resp, nil
	case <-timer.C:
		return Response{}, fmt.Errorf("%w: %s %s after %v", ErrTimeout, op, req.DeviceID, r.timeout)
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

func (r *Remote) forget(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// handleResponse routes a reply to its waiting call. Replies nobody waits
// for (late or duplicate) are dropped.
func (r *Remote) handleResponse(topic string, payload []byte) error {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding transport response: %w", err)
	}
	if resp.RequestID == "" {
		resp.RequestID = mqtt.LastSegment(topic)
	}

	r.mu.Lock()
	ch, ok := r.pending[resp.RequestID]
	if ok {
		delete(r.pending, resp.RequestID)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("dropping unmatched transport response", "request_id", resp.RequestID)
		return nil
	}
	ch <- resp
	return nil
}

type remoteLock struct {
	remote *Remote
	dev    *dock.Device
	lockID string
	once   sync.Once
	err    error
}

// Release closes the device on the agent. Only the first call does any work.
func (l *remoteLock) Release() error {
	l.once.Do(func() {
		req := l.remote.request(l.dev)
		req.LockID = l.lockID
		_, l.err = l.remote.call(context.Background(), mqtt.OpRelease, req)
	})
	return l.err
}
