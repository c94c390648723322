package agent

import "errors"

var (
	// ErrNoBinary is returned by New when no agent binary is configured.
	ErrNoBinary = errors.New("agent: binary is required")

	// ErrAlreadyRunning is returned by Start on a running supervisor.
	ErrAlreadyRunning = errors.New("agent: already running")

	// ErrNotRunning is reported by HealthCheck while the agent is down.
	ErrNotRunning = errors.New("agent: not running")

	// ErrExitedCleanly records an agent that exited with status 0 while it
	// was expected to keep running.
	ErrExitedCleanly = errors.New("agent: exited with status 0")
)
