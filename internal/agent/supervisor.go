package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// State is the lifecycle state of the supervised agent.
type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StateBackoff  State = "backoff"
	StateFailed   State = "failed"
	StateStarting State = "starting"
)

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultRestartDelay    = time.Second
	DefaultMaxRestartDelay = time.Minute
	DefaultStableThreshold = 30 * time.Second
	DefaultGracefulTimeout = 5 * time.Second
)

// maxLineLength flushes agent output that never ends its line.
const maxLineLength = 4096

// Config describes the agent binary and its restart policy.
type Config struct {
	// Binary is the agent executable. Required.
	Binary string

	Args []string

	// Env is appended to the daemon's environment.
	Env []string

	// RestartDelay is the first backoff step; it doubles per consecutive
	// failure up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last for the failure count to
	// reset.
	StableThreshold time.Duration

	// MaxRestarts bounds consecutive restarts. 0 means unlimited.
	MaxRestarts int

	// GracefulTimeout is the SIGTERM grace period before SIGKILL.
	GracefulTimeout time.Duration
}

// Logger is the logging surface used by the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor runs the USB I/O agent as a child process and restarts it when
// it exits unexpectedly.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu        sync.RWMutex
	cmd       *exec.Cmd
	state     State
	failures  int
	restarts  int
	lastErr   error
	startedAt time.Time
	stopping  bool
	quit      chan struct{}
	done      chan struct{}
}

// New validates cfg and returns a stopped supervisor.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Binary == "" {
		return nil, ErrNoBinary
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = max(DefaultMaxRestartDelay, cfg.RestartDelay)
	}
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = DefaultStableThreshold
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = DefaultGracefulTimeout
	}
	return &Supervisor{
		cfg:    cfg,
		logger: noopLogger{},
		state:  StateStopped,
	}, nil
}

// SetLogger sets the logger. Call before Start.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start launches the agent and the goroutine that watches it. The first
// launch must succeed; later launches are retried with backoff.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped && s.state != StateFailed {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = StateStarting
	s.stopping = false
	s.failures = 0
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	cmd, err := s.launch(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.lastErr = err
		close(s.done)
		s.mu.Unlock()
		return err
	}

	go s.watch(ctx, cmd)
	return nil
}

func (s *Supervisor) launch(ctx context.Context) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.cfg.Args...) //nolint:gosec // binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}

	cmd.Stdout = &lineWriter{logger: s.logger, stream: "stdout"}
	cmd.Stderr = &lineWriter{logger: s.logger, stream: "stderr"}
	cmd.WaitDelay = s.cfg.GracefulTimeout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting agent %s: %w", s.cfg.Binary, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.state = StateRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("agent started", "binary", s.cfg.Binary, "pid", cmd.Process.Pid)
	return cmd, nil
}

func (s *Supervisor) watch(ctx context.Context, cmd *exec.Cmd) {
	defer func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()
	}()

	for {
		err := cmd.Wait()

		s.mu.Lock()
		ran := time.Since(s.startedAt)
		if s.stopping || ctx.Err() != nil {
			s.state = StateStopped
			s.mu.Unlock()
			s.logger.Info("agent stopped")
			return
		}
		if ran >= s.cfg.StableThreshold {
			s.failures = 0
		}
		s.failures++
		attempt := s.failures
		s.lastErr = exitError(err)
		s.state = StateBackoff
		s.mu.Unlock()

		if s.cfg.MaxRestarts > 0 && attempt > s.cfg.MaxRestarts {
			s.setFailed()
			s.logger.Error("agent restart limit reached", "attempts", attempt-1, "error", s.LastError())
			return
		}

		delay := s.backoff(attempt)
		s.logger.Warn("agent exited, restarting",
			"error", s.LastError(),
			"ran_for", ran.Round(time.Millisecond),
			"attempt", attempt,
			"delay", delay,
		)

		next, ok := s.relaunch(ctx, delay)
		if !ok {
			return
		}
		cmd = next
	}
}

// relaunch waits out the backoff and starts the agent again, retrying launch
// failures on the same schedule. It reports false once the supervisor is
// stopping or gives up.
func (s *Supervisor) relaunch(ctx context.Context, delay time.Duration) (*exec.Cmd, bool) {
	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setStopped()
			return nil, false
		case <-s.quit:
			timer.Stop()
			s.setStopped()
			return nil, false
		case <-timer.C:
		}

		cmd, err := s.launch(ctx)
		if err == nil {
			s.mu.Lock()
			s.restarts++
			stopping := s.stopping
			s.mu.Unlock()
			// Stop raced the relaunch; the watcher reaps this run.
			if stopping {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
			}
			return cmd, true
		}

		s.mu.Lock()
		s.failures++
		attempt := s.failures
		s.lastErr = err
		s.mu.Unlock()
		if s.cfg.MaxRestarts > 0 && attempt > s.cfg.MaxRestarts {
			s.setFailed()
			s.logger.Error("agent restart limit reached", "attempts", attempt-1, "error", err)
			return nil, false
		}
		delay = s.backoff(attempt)
		s.logger.Error("agent relaunch failed", "error", err, "attempt", attempt, "delay", delay)
	}
}

// backoff returns the delay before restart attempt n (1-based).
func (s *Supervisor) backoff(attempt int) time.Duration {
	delay := s.cfg.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.cfg.MaxRestartDelay {
			return s.cfg.MaxRestartDelay
		}
	}
	return delay
}

func (s *Supervisor) setStopped() {
	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
}

func (s *Supervisor) setFailed() {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
}

// Stop signals the agent's process group with SIGTERM, escalating to
// SIGKILL after the grace period, and waits for the watcher to exit.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.done == nil {
		s.mu.Unlock()
		return nil
	}
	if !s.stopping {
		s.stopping = true
		close(s.quit)
	}
	cmd := s.cmd
	done := s.done
	running := s.state == StateRunning
	s.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	s.logger.Info("stopping agent", "pid", pid)
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("SIGTERM to agent failed", "pid", pid, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.GracefulTimeout):
		s.logger.Warn("agent ignored SIGTERM, killing", "pid", pid, "timeout", s.cfg.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing agent: %w", err)
	}
	<-done
	return nil
}

// HealthCheck reports ErrNotRunning unless the agent process is up.
func (s *Supervisor) HealthCheck(context.Context) error {
	if st := s.State(); st != StateRunning {
		return fmt.Errorf("%w: %s", ErrNotRunning, st)
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastError returns the most recent exit or launch error.
func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Stats is a point-in-time view of the supervisor.
type Stats struct {
	State         State  `json:"state"`
	PID           int    `json:"pid,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds,omitempty"`
	Restarts      int    `json:"restarts"`
	LastError     string `json:"last_error,omitempty"`
}

// Stats returns the current statistics.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{State: s.state, Restarts: s.restarts}
	if s.state == StateRunning && s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
		st.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// exitError keeps a clean exit distinguishable from a nil error so that the
// restart log line always carries a cause.
func exitError(err error) error {
	if err == nil {
		return ErrExitedCleanly
	}
	return err
}

// lineWriter logs each complete line written to it.
type lineWriter struct {
	logger Logger
	stream string
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.logger.Debug("agent output", "stream", w.stream, "line", string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLineLength {
		w.logger.Debug("agent output", "stream", w.stream, "line", string(w.buf))
		w.buf = w.buf[:0]
	}
	return len(p), nil
}
