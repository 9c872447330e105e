// Package ondevice runs matching against a local model runtime that keeps
// conversational sessions.
//
// One base session is created lazily with the system instructions as its
// initial prompt. Every call clones the base, prompts the clone and destroys
// it, so calls never see each other's history.
package ondevice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/entrhq/autofill/pkg/llm"
	"github.com/entrhq/autofill/pkg/logging"
)

// Name identifies the provider.
const Name = "local"

// ErrSessionLost reports that a session can no longer be used. The provider
// drops its base session and recreates it on the next call.
var ErrSessionLost = errors.New("model session lost")

// Runtime creates sessions.
type Runtime interface {
	Create(ctx context.Context, system string) (Session, error)
}

// Session is a conversation with the local model.
type Session interface {
	// Prompt sends text and returns the reply. A non-nil schema constrains
	// the reply.
	Prompt(ctx context.Context, text string, schema *llm.Schema) (string, error)
	Clone(ctx context.Context) (Session, error)
	Destroy()
}

// Provider is safe for concurrent use.
type Provider struct {
	runtime Runtime
	logger  *logging.Logger

	mu     sync.Mutex
	base   Session
	system string
}

// New returns a provider over runtime.
func New(runtime Runtime, logger *logging.Logger) *Provider {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Provider{runtime: runtime, logger: logger}
}

// Name returns "local".
func (p *Provider) Name() string {
	return Name
}

// Infer prompts a clone of the base session with prompt.User.
func (p *Provider) Infer(ctx context.Context, prompt llm.Prompt, schema *llm.Schema) (string, error) {
	base, err := p.baseSession(ctx, prompt.System)
	if err != nil {
		return "", err
	}

	session, err := base.Clone(ctx)
	if err != nil {
		p.logger.Debugf("Clone failed, prompting base session: %v", err)
		session = base
	}
	if session != base {
		defer session.Destroy()
	}

	out, err := session.Prompt(ctx, prompt.User, schema)
	if err != nil {
		if errors.Is(err, ErrSessionLost) {
			p.drop(base)
		}
		return "", err
	}
	return out, nil
}

func (p *Provider) baseSession(ctx context.Context, system string) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.base != nil && p.system == system {
		return p.base, nil
	}
	if p.base != nil {
		p.base.Destroy()
		p.base = nil
	}

	session, err := p.runtime.Create(ctx, system)
	if err != nil {
		return nil, fmt.Errorf("failed to create model session: %w", err)
	}
	p.base = session
	p.system = system
	return session, nil
}

func (p *Provider) drop(base Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.base == base {
		p.logger.Warnf("Dropping lost model session")
		p.base.Destroy()
		p.base = nil
	}
}

// Close destroys the base session.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.base != nil {
		p.base.Destroy()
		p.base = nil
	}
}
