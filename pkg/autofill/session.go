// Package autofill ties one fill run together: it unlocks the vault, collects
// fields, runs a strategy and locks the vault again however the run ends.
package autofill

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/entrhq/autofill/pkg/detector"
	"github.com/entrhq/autofill/pkg/dom"
	"github.com/entrhq/autofill/pkg/logging"
	"github.com/entrhq/autofill/pkg/policy"
	"github.com/entrhq/autofill/pkg/strategy"
	"github.com/entrhq/autofill/pkg/types"
)

// ErrNoItems is returned when the vault has nothing to fill with.
var ErrNoItems = errors.New("no personal info configured")

// Page is a document that can be snapshotted and filled.
type Page interface {
	strategy.Page
	Document(ctx context.Context) (*dom.Document, error)
}

// Vault is what a run needs from the vault.
type Vault interface {
	IsSafeMode(ctx context.Context) (bool, error)
	Unlock(ctx context.Context, password string) error
	Items(ctx context.Context) ([]types.PersonalInfoItem, error)
	Lock()
}

// Runner executes a strategy.
type Runner interface {
	Run(ctx context.Context, mode strategy.Mode, page strategy.Page, fields []*detector.Field, items []types.PersonalInfoItem) (strategy.Report, error)
}

// Options tunes a session.
type Options struct {
	Mode     strategy.Mode
	Detector detector.Options
	// UnlockFirst asks for the vault password before matching when Safe
	// Mode is on, instead of on the first secret disclosure.
	UnlockFirst bool
}

// Result describes a finished run.
type Result struct {
	RunID  string
	Fields int
	Report strategy.Report
}

// Session runs fills against one vault.
type Session struct {
	vault    Vault
	runner   Runner
	prompter policy.Prompter
	opts     Options
	logger   *logging.Logger
}

// NewSession returns a session. prompter may be nil when UnlockFirst is off.
func NewSession(v Vault, runner Runner, prompter policy.Prompter, opts Options, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.Mode == "" {
		opts.Mode = strategy.ModeBatch
	}
	return &Session{vault: v, runner: runner, prompter: prompter, opts: opts, logger: logger}
}

// Run fills page. The vault is locked when Run returns.
func (s *Session) Run(ctx context.Context, page Page) (Result, error) {
	defer s.vault.Lock()

	res := Result{RunID: uuid.NewString()}
	log := s.logger.Component("run " + res.RunID[:8])

	if s.opts.UnlockFirst {
		if err := s.unlock(ctx); err != nil {
			return res, err
		}
	}

	items, err := s.vault.Items(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load vault items: %w", err)
	}
	if len(items) == 0 {
		return res, ErrNoItems
	}

	doc, err := page.Document(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to read page: %w", err)
	}
	fields := detector.Collect(doc, s.opts.Detector)
	res.Fields = len(fields)
	if len(fields) == 0 {
		log.Infof("No fillable fields on %s", page.Site())
		return res, nil
	}

	log.Debugf("Collected %d fields on %s", len(fields), page.Site())
	res.Report, err = s.runner.Run(ctx, s.opts.Mode, page, fields, items)
	return res, err
}

func (s *Session) unlock(ctx context.Context) error {
	safe, err := s.vault.IsSafeMode(ctx)
	if err != nil {
		return fmt.Errorf("failed to read vault state: %w", err)
	}
	if !safe {
		return nil
	}
	if s.prompter == nil {
		return policy.ErrLocked
	}

	password, ok, err := s.prompter.Password(ctx, "Unlock vault")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if !ok {
		return policy.ErrLocked
	}
	return s.vault.Unlock(ctx, password)
}
