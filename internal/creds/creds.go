// Package creds mints scoped access tokens for tool servers and the cloud
// backend.
package creds

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoScopes is returned when a provider is configured without scopes.
var ErrNoScopes = errors.New("creds: at least one scope is required")

// SourceFunc builds a token source for the given scopes.
type SourceFunc func(ctx context.Context, scopes ...string) (oauth2.TokenSource, error)

// Config configures a Provider.
type Config struct {
	// Scopes the minted tokens are valid for. Required.
	Scopes []string
	// Source builds the underlying token source. Defaults to the
	// environment's application default credentials.
	Source SourceFunc
}

// Token is one minted access token.
type Token struct {
	Value  string
	Expiry time.Time
}

// Provider mints access tokens for a fixed scope set.
//
// The underlying source is built once, on first use, and refreshes its
// tokens on its own from then on. A Provider is safe for concurrent use.
type Provider struct {
	scopes []string
	source SourceFunc

	once sync.Once
	ts   oauth2.TokenSource
	err  error
}

// New creates a provider for the given scopes. Configuring no scopes is a
// mistake and fails right here, not at first use.
func New(cfg Config) (*Provider, error) {
	if len(cfg.Scopes) == 0 {
		return nil, ErrNoScopes
	}
	source := cfg.Source
	if source == nil {
		source = google.DefaultTokenSource
	}
	return &Provider{scopes: slices.Clone(cfg.Scopes), source: source}, nil
}

// Scopes returns the scope set tokens are minted for.
func (p *Provider) Scopes() []string {
	return slices.Clone(p.scopes)
}

// TokenSource returns the underlying token source, building it on first use.
func (p *Provider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	p.once.Do(func() {
		p.ts, p.err = p.source(ctx, p.scopes...)
	})
	if p.err != nil {
		return nil, fmt.Errorf("build token source: %w", p.err)
	}
	return p.ts, nil
}

// Token mints one token.
//
// The boolean reports whether a credential is present. An empty access token
// means the environment has none to offer; callers connect unauthenticated
// in that case, so it is not a failure.
func (p *Provider) Token(ctx context.Context) (Token, bool, error) {
	ts, err := p.TokenSource(ctx)
	if err != nil {
		return Token{}, false, err
	}
	tok, err := ts.Token()
	if err != nil {
		return Token{}, false, fmt.Errorf("mint token: %w", err)
	}
	if tok.AccessToken == "" {
		return Token{}, false, nil
	}
	return Token{Value: tok.AccessToken, Expiry: tok.Expiry}, true, nil
}
