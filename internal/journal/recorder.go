package journal

import (
	"context"
	"time"

	"github.com/nerrad567/dockd/internal/dock"
)

const writeTimeout = 5 * time.Second

// Logger is the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder is a dock.Observer that writes events to a Repository.
//
// Observe never blocks: events are queued and written by Run. When the
// queue is full the event is dropped and a warning logged.
type Recorder struct {
	repo   Repository
	queue  chan dock.Event
	logger Logger
}

var _ dock.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder with the given queue size.
func NewRecorder(repo Repository, size int, logger Logger) *Recorder {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		queue:  make(chan dock.Event, size),
		logger: logger,
	}
}

// Observe queues ev for writing.
func (r *Recorder) Observe(ev dock.Event) {
	select {
	case r.queue <- ev:
	default:
		r.logger.Warn("journal queue full, dropping event",
			"type", ev.Type,
			"device", ev.DeviceID,
		)
	}
}

// Run writes queued events until ctx is cancelled, then drains whatever is
// still queued.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case ev := <-r.queue:
			r.write(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-r.queue:
					r.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(ev dock.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, EntryFromEvent(ev)); err != nil {
		r.logger.Error("failed to journal dock event",
			"type", ev.Type,
			"device", ev.DeviceID,
			"error", err,
		)
	}
}

// EntryFromEvent converts a dock event to a journal entry.
func EntryFromEvent(ev dock.Event) *Entry {
	e := &Entry{
		Type:        string(ev.Type),
		DeviceID:    ev.DeviceID,
		TopologyKey: string(ev.Key),
		DurationMS:  ev.Duration.Milliseconds(),
		CreatedAt:   ev.Time,
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	return e
}
