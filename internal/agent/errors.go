package agent

import "errors"

var (
	// ErrConnect marks a tool server that could not be brought up.
	ErrConnect = errors.New("agent: could not connect")

	// ErrCallTimeout marks a tool call that ran past its time budget. The
	// connection that carried the call stays usable.
	ErrCallTimeout = errors.New("agent: tool call timed out")

	// ErrNoAgents is returned when a call needs an agent and none are loaded.
	ErrNoAgents = errors.New("agent: no agents loaded")

	// ErrUnknownTool is returned when no loaded agent provides the requested
	// tool.
	ErrUnknownTool = errors.New("agent: unknown tool")
)
