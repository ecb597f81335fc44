// Package cloud talks to the crew backend that decides which project and
// service tier an install runs under.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/exp/ordered"

	"github.com/dotcommander/crew/internal/config"
)

var (
	// ErrProjectRequired is returned when no project id could be resolved
	// from the override, the load answer, or the finished onboarding.
	ErrProjectRequired = errors.New("cloud: project id required")

	// ErrBackend marks transport failures and non-2xx backend answers.
	ErrBackend = errors.New("cloud: backend request failed")
)

// Tier identifies the service level an install is onboarded to.
type Tier string

// Known tiers. Unknown values pass through untouched so older binaries keep
// working against newer backends.
const (
	TierFree     Tier = "free-tier"
	TierLegacy   Tier = "legacy-tier"
	TierStandard Tier = "standard-tier"
)

// State tracks how far a Setup call has come.
type State int

const (
	StateNotStarted State = iota
	StateLoading
	StateOnboarding
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateLoading:
		return "loading"
	case StateOnboarding:
		return "onboarding"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ClientMetadata identifies this client to the backend on every call.
type ClientMetadata struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

// TierInfo describes one tier the backend offers.
type TierInfo struct {
	ID        Tier `json:"id"`
	IsDefault bool `json:"isDefault"`
	// RequiresProject means the tier only works against a project the user
	// brings along; the backend will not manage one.
	RequiresProject bool `json:"requiresUserProject"`
}

// Identity is the resolved outcome of Setup.
type Identity struct {
	ProjectID string
	Tier      Tier
}

type loadRequest struct {
	CloudProject string         `json:"cloudProject,omitempty"`
	Metadata     ClientMetadata `json:"metadata"`
}

type loadResponse struct {
	CurrentTier  *TierInfo  `json:"currentTier"`
	AllowedTiers []TierInfo `json:"allowedTiers"`
	CloudProject string     `json:"cloudProject"`
}

type onboardRequest struct {
	TierID       Tier           `json:"tierId"`
	CloudProject string         `json:"cloudProject,omitempty"`
	Metadata     ClientMetadata `json:"metadata"`
}

type operation struct {
	Name     string           `json:"name"`
	Done     bool             `json:"done"`
	Response *onboardResponse `json:"response"`
}

type onboardResponse struct {
	CloudProject *struct {
		ID string `json:"id"`
	} `json:"cloudProject"`
}

// Client performs the load/onboard exchange against the backend.
type Client struct {
	cfg  config.Cloud
	http *http.Client
	meta ClientMetadata

	mu    sync.Mutex
	state State
}

// New creates a client for the configured backend. A nil httpClient falls
// back to http.DefaultClient; `crew setup` passes one that carries the
// minted credentials.
func New(cfg config.Cloud, httpClient *http.Client, meta ClientMetadata) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient, meta: meta}
}

// State returns how far the current (or last) Setup call came.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Setup resolves the project and tier for this install.
//
// projectOverride wins over everything the backend suggests; the caller
// resolves it from the --project flag, the CREW_PROJECT variable, or the
// settings file. Onboarding is a long-running operation on the backend:
// Setup keeps reissuing the same request every poll interval until the
// operation reports done or ctx ends. Onboarding an already onboarded
// install is a backend no-op, so retrying is always safe.
//
// When the override, the load answer, and the finished operation all come
// back without a project id, Setup fails with ErrProjectRequired.
func (c *Client) Setup(ctx context.Context, projectOverride string) (Identity, error) {
	c.setState(StateLoading)

	load, err := c.load(ctx, projectOverride)
	if err != nil {
		c.setState(StateFailed)
		return Identity{}, err
	}
	tier := pickTier(load)

	c.setState(StateOnboarding)
	req := onboardRequest{
		TierID:       tier.ID,
		CloudProject: ordered.First(projectOverride, load.CloudProject),
		Metadata:     c.meta,
	}
	op, err := c.onboard(ctx, req)
	if err != nil {
		c.setState(StateFailed)
		return Identity{}, err
	}
	for !op.Done {
		select {
		case <-ctx.Done():
			c.setState(StateFailed)
			return Identity{}, fmt.Errorf("onboarding interrupted: %w", ctx.Err())
		case <-time.After(c.pollInterval()):
		}
		op, err = c.onboard(ctx, req)
		if err != nil {
			c.setState(StateFailed)
			return Identity{}, err
		}
	}

	var lroProject string
	if op.Response != nil && op.Response.CloudProject != nil {
		lroProject = op.Response.CloudProject.ID
	}

	project := ordered.First(projectOverride, lroProject, load.CloudProject)
	if project == "" {
		c.setState(StateFailed)
		if tier.RequiresProject {
			return Identity{}, fmt.Errorf("%w: the %s tier needs a project of your own", ErrProjectRequired, tier.ID)
		}
		return Identity{}, fmt.Errorf("%w: the backend assigned none", ErrProjectRequired)
	}

	c.setState(StateDone)
	return Identity{ProjectID: project, Tier: tier.ID}, nil
}

// pickTier prefers the tier the user is already on, then the backend's
// default, then free.
func pickTier(load *loadResponse) TierInfo {
	if load.CurrentTier != nil {
		return *load.CurrentTier
	}
	for _, t := range load.AllowedTiers {
		if t.IsDefault {
			return t
		}
	}
	return TierInfo{ID: TierFree}
}

func (c *Client) load(ctx context.Context, project string) (*loadResponse, error) {
	var out loadResponse
	if err := c.post(ctx, "loadAssist", loadRequest{CloudProject: project, Metadata: c.meta}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) onboard(ctx context.Context, req onboardRequest) (*operation, error) {
	var out operation
	if err := c.post(ctx, "onboardUser", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, method string, body, out any) error {
	bts, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	url := strings.TrimSuffix(c.cfg.Endpoint, "/") + "/v1internal:" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bts))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBackend, method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return fmt.Errorf("%w: %s: HTTP %d: %s", ErrBackend, method, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", ErrBackend, method, err)
	}
	return nil
}

func (c *Client) pollInterval() time.Duration {
	if c.cfg.PollInterval > 0 {
		return c.cfg.PollInterval
	}
	return 5 * time.Second
}
