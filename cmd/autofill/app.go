package main

import (
	"context"
	"fmt"

	"github.com/entrhq/autofill/pkg/config"
	"github.com/entrhq/autofill/pkg/logging"
	"github.com/entrhq/autofill/pkg/policy"
	"github.com/entrhq/autofill/pkg/vault"
)

// app holds what every command needs: loaded settings, the logger and the
// vault over its configured store.
type app struct {
	flags    *rootFlags
	logger   *logging.Logger
	settings config.AutofillSettings
	vault    *vault.Vault
	close    func() error
}

func openApp(flags *rootFlags) (*app, error) {
	if err := config.Initialize(flags.configPath); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	settings := config.GetAutofill().Snapshot()
	if settings.Debug {
		logging.SetLevel(logging.LevelDebug)
	}

	// A logger that cannot open its file falls back to stderr.
	logger, _ := logging.NewLogger("cli")

	backend, path, err := config.GetVault().Location()
	if err != nil {
		return nil, err
	}

	a := &app{flags: flags, logger: logger, settings: settings, close: func() error { return nil }}
	var store vault.Store
	switch backend {
	case config.BackendSQLite:
		s, err := vault.OpenSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		store, a.close = s, s.Close
	default:
		store = vault.NewFileStore(path)
	}
	logger.Debugf("Vault %s store at %s", backend, path)

	a.vault = vault.New(store, vault.WithLogger(logger.Component("vault")))
	return a, nil
}

func (a *app) Close() {
	a.vault.Lock()
	if err := a.close(); err != nil {
		a.logger.Warnf("Failed to close vault store: %v", err)
	}
	_ = a.logger.Close()
}

func (a *app) llmSettings() (config.LLMSettings, error) {
	f := a.flags.llm
	return config.BuildLLMSettings(config.LLMFlags{
		Provider:   f.provider,
		BaseURL:    f.baseURL,
		APIKey:     f.apiKey,
		Model:      f.model,
		LocalURL:   f.localURL,
		LocalModel: f.localModel,
	})
}

func (a *app) whitelist(ctx context.Context) (*policy.Whitelist, error) {
	patterns, err := a.vault.Whitelist(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load whitelist: %w", err)
	}
	return policy.NewWhitelist(patterns)
}

// unlockIfNeeded prompts for the vault password when Safe Mode is on and the
// vault is locked.
func (a *app) unlockIfNeeded(ctx context.Context, p *prompter) error {
	state, err := a.vault.State(ctx)
	if err != nil {
		return err
	}
	if state != vault.StateLocked {
		return nil
	}
	password, ok, err := p.Password(ctx, "Vault password")
	if err != nil {
		return err
	}
	if !ok {
		return vault.ErrLocked
	}
	return a.vault.Unlock(ctx, password)
}
