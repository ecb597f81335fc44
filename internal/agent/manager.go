package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/crew/internal/config"
)

// TokenFunc mints a bearer token for the given scopes. An empty token with a
// nil error means "proceed without credentials".
type TokenFunc func(ctx context.Context, scopes []string) (string, error)

type dialFunc func(ctx context.Context, srv config.ToolServer, opts DialOptions) (*Conn, error)

// CallStats describes one settled tool call.
type CallStats struct {
	Server   string
	Tool     string
	Args     map[string]any
	Output   string
	Err      error
	Start    time.Time
	Duration time.Duration
}

// Agent is one tool server that made it through bring-up.
type Agent struct {
	Name  string
	Conn  *Conn
	Tools []*Tool
}

// LoadResult is the settled outcome of one server bring-up.
type LoadResult struct {
	Server config.ToolServer
	Agent  *Agent
	Err    error
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialFunc replaces how the manager connects to servers.
func WithDialFunc(dial dialFunc) Option {
	return func(m *Manager) { m.dial = dial }
}

// WithTokenFunc sets the credential minter used for servers that configure
// auth scopes.
func WithTokenFunc(token TokenFunc) Option {
	return func(m *Manager) { m.token = token }
}

// WithObserver registers a callback for settled tool calls. Whatever the
// callback does never changes the call result.
func WithObserver(fn func(CallStats)) Option {
	return func(m *Manager) { m.observe = fn }
}

// WithLoadNotify registers a callback invoked as each server bring-up
// settles, from the goroutine that settled it.
func WithLoadNotify(fn func(LoadResult)) Option {
	return func(m *Manager) { m.notify = fn }
}

// Manager brings up the configured tool servers and tracks which one is the
// current default for unrouted calls. It is safe for concurrent use.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger

	dial    dialFunc
	token   TokenFunc
	observe func(CallStats)
	notify  func(LoadResult)

	mu     sync.RWMutex
	agents []*Agent
	active string
}

// NewManager creates a manager for the servers in cfg. Nothing connects
// until Load.
func NewManager(cfg *config.Config, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{cfg: cfg, logger: logger, dial: Dial}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsEnabled reports whether the named server is enabled.
func (m *Manager) IsEnabled(name string) bool {
	return !slices.Contains(m.cfg.Disable, "*") &&
		!slices.Contains(m.cfg.Disable, name)
}

// EnabledServers iterates enabled servers in configuration order.
func (m *Manager) EnabledServers() iter.Seq[config.ToolServer] {
	return func(yield func(config.ToolServer) bool) {
		for _, srv := range m.cfg.Servers {
			if !m.IsEnabled(srv.Name) {
				continue
			}
			if !yield(srv) {
				return
			}
		}
	}
}

// Load brings up every enabled server concurrently and keeps the ones that
// come up. A server that fails is logged and left out; it never stops the
// others. The returned results, like the loaded agents, keep configuration
// order, and the first loaded agent becomes the default selection.
func (m *Manager) Load(ctx context.Context) []LoadResult {
	enabled := slices.Collect(m.EnabledServers())
	results := make([]LoadResult, len(enabled))

	var wg errgroup.Group
	for i, srv := range enabled {
		wg.Go(func() error {
			results[i] = LoadResult{Server: srv}
			a, err := m.bringUp(ctx, srv)
			if err != nil {
				m.logger.Warn("tool server failed to come up",
					"server", srv.Name,
					"error", err,
				)
				results[i].Err = err
			} else {
				results[i].Agent = a
			}
			if m.notify != nil {
				m.notify(results[i])
			}
			return nil
		})
	}
	// Bring-up failures ride in the results; the group never errors.
	_ = wg.Wait()

	m.mu.Lock()
	m.agents = m.agents[:0]
	for _, r := range results {
		if r.Agent != nil {
			m.agents = append(m.agents, r.Agent)
		}
	}
	m.active = ""
	if len(m.agents) > 0 {
		m.active = m.agents[0].Name
	}
	m.mu.Unlock()

	return results
}

func (m *Manager) bringUp(ctx context.Context, srv config.ToolServer) (*Agent, error) {
	opts := DialOptions{NoInheritEnv: m.cfg.NoInheritEnv}
	if srv.Auth != nil {
		if m.token == nil {
			return nil, fmt.Errorf("server %q configures auth scopes but no credential minter is set", srv.Name)
		}
		tok, err := m.token(ctx, srv.Auth.Scopes)
		if err != nil {
			return nil, fmt.Errorf("mint credential for %q: %w", srv.Name, err)
		}
		opts.Token = tok
	}

	conn, err := m.dial(ctx, srv, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	timeout := srv.Timeout
	if timeout == 0 {
		timeout = m.cfg.CallTimeout
	}
	tools, err := conn.Tools(ctx, timeout)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return &Agent{Name: srv.Name, Conn: conn, Tools: tools}, nil
}

// Agents returns the loaded agents in configuration order.
func (m *Manager) Agents() []*Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.agents)
}

// Agent returns the loaded agent with the given name.
func (m *Manager) Agent(name string) (*Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.agents {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Active returns the current default agent, if any.
func (m *Manager) Active() (*Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked()
}

func (m *Manager) activeLocked() (*Agent, bool) {
	if m.active == "" {
		return nil, false
	}
	for _, a := range m.agents {
		if a.Name == m.active {
			return a, true
		}
	}
	return nil, false
}

// SetActive selects the named agent as the default. When no loaded agent
// matches, the selection becomes empty; that is an answer, not an error.
// It reports whether a match was found.
func (m *Manager) SetActive(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.agents {
		if a.Name == name {
			m.active = name
			return true
		}
	}
	m.active = ""
	return false
}

// Tools returns every loaded tool, grouped by agent in configuration order.
func (m *Manager) Tools() []*Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var tools []*Tool
	for _, a := range m.agents {
		tools = append(tools, a.Tools...)
	}
	return tools
}

// ResolveTool finds a tool by name. Accepted forms:
//
//	server:tool  - explicit routing to one server
//	server_tool  - the local compound name
//	tool         - the active agent's tool, else a unique match anywhere
func (m *Manager) ResolveTool(name string) (*Tool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sname, rest, ok := strings.Cut(name, ":"); ok {
		for _, a := range m.agents {
			if a.Name != sname {
				continue
			}
			for _, t := range a.Tools {
				if t.remoteName == rest {
					return t, true
				}
			}
			return nil, false
		}
		return nil, false
	}

	for _, a := range m.agents {
		for _, t := range a.Tools {
			if t.Name == name {
				return t, true
			}
		}
	}

	if a, ok := m.activeLocked(); ok {
		for _, t := range a.Tools {
			if t.remoteName == name {
				return t, true
			}
		}
	}

	var match *Tool
	for _, a := range m.agents {
		for _, t := range a.Tools {
			if t.remoteName != name {
				continue
			}
			if match != nil {
				// Ambiguous; the caller has to route explicitly.
				return nil, false
			}
			match = t
		}
	}
	return match, match != nil
}

// Call resolves and executes the named tool. Settled calls are reported to
// the observer; whatever the observer does never changes the call result.
func (m *Manager) Call(ctx context.Context, name string, args map[string]any) (Result, error) {
	m.mu.RLock()
	loaded := len(m.agents)
	m.mu.RUnlock()
	if loaded == 0 {
		return Result{}, ErrNoAgents
	}

	tool, ok := m.ResolveTool(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	start := time.Now()
	res, err := tool.Execute(ctx, args)
	if m.observe != nil {
		m.observe(CallStats{
			Server:   tool.Server,
			Tool:     tool.Name,
			Args:     args,
			Output:   res.Text,
			Err:      err,
			Start:    start,
			Duration: time.Since(start),
		})
	}
	return res, err
}

// Close tears down every live connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errsum error
	for _, a := range m.agents {
		if err := a.Conn.Close(); err != nil {
			errsum = errors.Join(errsum, fmt.Errorf("close %s: %w", a.Name, err))
		}
	}
	m.agents = nil
	m.active = ""
	return errsum
}
