// Package policy decides what value a vault item discloses on a given site.
//
// Plain items are always disclosed. Secret items disclose their real value
// only on whitelisted sites and only after the user confirms; elsewhere the
// item's decoy is filled instead.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/autofill/pkg/logging"
	"github.com/entrhq/autofill/pkg/types"
	"github.com/entrhq/autofill/pkg/vault"
)

// Placeholder is filled for secret items without a decoy.
const Placeholder = "••••••••"

// ErrLocked is returned when a secret is needed and the user declines to
// unlock the vault.
var ErrLocked = vault.ErrLocked

// Prompter asks the user for decisions. Password reports ok=false when the
// user declines.
type Prompter interface {
	Confirm(ctx context.Context, title, body string) (bool, error)
	Password(ctx context.Context, title string) (password string, ok bool, err error)
}

// Vault is the part of the vault Reveal needs.
type Vault interface {
	IsSafeMode(ctx context.Context) (bool, error)
	Unlock(ctx context.Context, password string) error
	DecryptItem(ctx context.Context, item types.PersonalInfoItem) (types.PersonalInfoItem, error)
}

// Disclosure is the outcome of Reveal.
type Disclosure struct {
	Value string
	// Decoy is set when Value is the item's fake value or the placeholder.
	Decoy bool
	// Declined is set when the user refused; nothing should be filled.
	Declined bool
}

// Policy gates disclosure of vault items.
type Policy struct {
	whitelist *Whitelist
	vault     Vault
	prompter  Prompter
	logger    *logging.Logger
}

// Option configures a Policy.
type Option func(*Policy)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Policy) {
		p.logger = l
	}
}

// New returns a policy. A nil prompter declines every confirmation.
func New(whitelist *Whitelist, v Vault, prompter Prompter, opts ...Option) *Policy {
	p := &Policy{
		whitelist: whitelist,
		vault:     v,
		prompter:  prompter,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Trusted reports whether site is whitelisted.
func (p *Policy) Trusted(site string) bool {
	return p.whitelist.Allows(site)
}

// Reveal returns the value to fill for item on site.
func (p *Policy) Reveal(ctx context.Context, item types.PersonalInfoItem, site string) (Disclosure, error) {
	if !item.IsSecret {
		return Disclosure{Value: item.Value.String()}, nil
	}

	if !p.Trusted(site) {
		decoy := item.FakeValue
		if decoy == "" {
			decoy = Placeholder
		}
		p.logger.Debugf("Filling decoy for %s on untrusted %s", item.Keyname, Host(site))
		return Disclosure{Value: decoy, Decoy: true}, nil
	}

	if item.Value.IsEncrypted() {
		opened, err := p.open(ctx, item)
		if err != nil {
			return Disclosure{}, err
		}
		item = opened
	}

	if p.prompter == nil {
		return Disclosure{Declined: true}, nil
	}
	ok, err := p.prompter.Confirm(ctx, "Sensitive Field",
		fmt.Sprintf("Fill %s on %s?", item.Keyname, Host(site)))
	if err != nil {
		return Disclosure{}, fmt.Errorf("failed to confirm disclosure: %w", err)
	}
	if !ok {
		p.logger.Infof("Disclosure of %s declined", item.Keyname)
		return Disclosure{Declined: true}, nil
	}
	return Disclosure{Value: item.Value.String()}, nil
}

// open decrypts item, asking for the vault password when the vault is
// locked.
func (p *Policy) open(ctx context.Context, item types.PersonalInfoItem) (types.PersonalInfoItem, error) {
	if p.vault == nil {
		return item, ErrLocked
	}

	opened, err := p.vault.DecryptItem(ctx, item)
	if err == nil {
		return opened, nil
	}
	if !errors.Is(err, vault.ErrLocked) {
		return item, err
	}

	safe, err := p.vault.IsSafeMode(ctx)
	if err != nil {
		return item, err
	}
	if !safe || p.prompter == nil {
		return item, ErrLocked
	}

	password, ok, err := p.prompter.Password(ctx, "Unlock vault")
	if err != nil {
		return item, fmt.Errorf("failed to read password: %w", err)
	}
	if !ok {
		return item, ErrLocked
	}
	if err := p.vault.Unlock(ctx, password); err != nil {
		return item, err
	}
	return p.vault.DecryptItem(ctx, item)
}
