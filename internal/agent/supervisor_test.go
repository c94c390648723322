package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var b strings.Builder
	b.WriteString(level + " " + msg)
	for _, a := range args {
		if s, ok := a.(string); ok {
			b.WriteString(" " + s)
		}
	}
	l.lines = append(l.lines, b.String())
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args...) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args...) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args...) }

func (l *recordingLogger) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(Config{Binary: "/bin/true"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.cfg.RestartDelay != DefaultRestartDelay {
		t.Errorf("RestartDelay = %v, want %v", s.cfg.RestartDelay, DefaultRestartDelay)
	}
	if s.cfg.MaxRestartDelay != DefaultMaxRestartDelay {
		t.Errorf("MaxRestartDelay = %v, want %v", s.cfg.MaxRestartDelay, DefaultMaxRestartDelay)
	}
	if s.cfg.StableThreshold != DefaultStableThreshold {
		t.Errorf("StableThreshold = %v, want %v", s.cfg.StableThreshold, DefaultStableThreshold)
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %q, want %q", s.State(), StateStopped)
	}
}

func TestNew_RequiresBinary(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoBinary) {
		t.Errorf("New() error = %v, want ErrNoBinary", err)
	}
}

func TestBackoff(t *testing.T) {
	s, _ := New(Config{
		Binary:          "/bin/true",
		RestartDelay:    time.Second,
		MaxRestartDelay: 30 * time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{12, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := s.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestStopBeforeStart(t *testing.T) {
	s, _ := New(Config{Binary: "/bin/true"})
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestStart_InvalidBinary(t *testing.T) {
	s, _ := New(Config{Binary: "/nonexistent/agent"})

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() expected error for missing binary")
	}
	if s.State() != StateFailed {
		t.Errorf("State() = %q, want %q", s.State(), StateFailed)
	}
	if s.Stats().LastError == "" {
		t.Error("Stats().LastError empty after failed start")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() after failed start error = %v", err)
	}
}

func TestStartStop(t *testing.T) {
	s, _ := New(Config{
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if err := s.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if s.Stats().PID == 0 {
		t.Error("Stats().PID = 0 while running")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %q, want %q", s.State(), StateStopped)
	}
	if err := s.HealthCheck(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("HealthCheck() error = %v, want ErrNotRunning", err)
	}
}

func TestRestartsAfterExit(t *testing.T) {
	logger := &recordingLogger{}
	s, _ := New(Config{
		Binary:       "/bin/sh",
		Args:         []string{"-c", "echo ready; exit 3"},
		RestartDelay: 10 * time.Millisecond,
		MaxRestarts:  2,
	})
	s.SetLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "restart limit", func() bool { return s.State() == StateFailed })

	if got := s.Stats().Restarts; got != 2 {
		t.Errorf("Restarts = %d, want 2", got)
	}
	if s.LastError() == nil {
		t.Error("LastError() = nil after failing runs")
	}
	if !logger.contains("stdout line ready") {
		t.Error("agent output was not relayed to the logger")
	}
	if !logger.contains("agent restart limit reached") {
		t.Error("restart limit not logged")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestCleanExitIsRestarted(t *testing.T) {
	s, _ := New(Config{
		Binary:       "/bin/true",
		RestartDelay: 10 * time.Millisecond,
		MaxRestarts:  1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "failed state", func() bool { return s.State() == StateFailed })

	if !errors.Is(s.LastError(), ErrExitedCleanly) {
		t.Errorf("LastError() = %v, want ErrExitedCleanly", s.LastError())
	}
}

func TestStopDuringBackoff(t *testing.T) {
	s, _ := New(Config{
		Binary:       "/bin/true",
		RestartDelay: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "backoff", func() bool { return s.State() == StateBackoff })

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop() }()

	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() blocked on the backoff timer")
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %q, want %q", s.State(), StateStopped)
	}
}

func TestLineWriter(t *testing.T) {
	logger := &recordingLogger{}
	w := &lineWriter{logger: logger, stream: "stderr"}

	_, _ = w.Write([]byte("par"))
	_, _ = w.Write([]byte("tial\nsecond\nthi"))

	if !logger.contains("stderr line partial") || !logger.contains("stderr line second") {
		t.Errorf("lines = %v", logger.lines)
	}
	if logger.contains("thi") {
		t.Error("incomplete line logged early")
	}
	if string(w.buf) != "thi" {
		t.Errorf("buffered = %q, want %q", w.buf, "thi")
	}
}
