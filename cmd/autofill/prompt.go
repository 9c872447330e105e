package main

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/huh"
)

// passwordEnv supplies the vault password for non-interactive runs.
const passwordEnv = "AUTOFILL_VAULT_PASSWORD"

// prompter asks the user through huh forms.
type prompter struct {
	// assumeYes accepts every disclosure confirmation.
	assumeYes bool
}

func (p *prompter) Confirm(ctx context.Context, title, body string) (bool, error) {
	if p.assumeYes {
		return true, nil
	}
	value := false
	c := huh.NewConfirm().
		Title(title).
		Description(body).
		Affirmative("Fill").
		Negative("Skip").
		Value(&value)

	if err := runForm(ctx, c); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return value, nil
}

func (p *prompter) Password(ctx context.Context, title string) (string, bool, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, true, nil
	}
	value, err := promptPassword(ctx, title, "")
	if errors.Is(err, huh.ErrUserAborted) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, value != "", nil
}

func runForm(ctx context.Context, fields ...huh.Field) error {
	return huh.NewForm(huh.NewGroup(fields...)).WithShowHelp(true).RunWithContext(ctx)
}

func promptString(ctx context.Context, title, description, defaultVal string) (string, error) {
	var value string
	inp := huh.NewInput().
		Title(title).
		Value(&value)
	if description != "" {
		inp = inp.Description(description)
	}
	if defaultVal != "" {
		inp = inp.Placeholder(defaultVal)
	}

	if err := runForm(ctx, inp); err != nil {
		return "", err
	}
	if value == "" {
		return defaultVal, nil
	}
	return value, nil
}

func promptText(ctx context.Context, title, description string) (string, error) {
	var value string
	txt := huh.NewText().
		Title(title).
		Description(description).
		Value(&value)
	if err := runForm(ctx, txt); err != nil {
		return "", err
	}
	return value, nil
}

func promptPassword(ctx context.Context, title, description string) (string, error) {
	var value string
	inp := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&value)
	if description != "" {
		inp = inp.Description(description)
	}

	if err := runForm(ctx, inp); err != nil {
		return "", err
	}
	return value, nil
}

func promptConfirm(ctx context.Context, title string, defaultYes bool) (bool, error) {
	value := defaultYes
	c := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&value)
	if err := runForm(ctx, c); err != nil {
		return false, err
	}
	return value, nil
}

// promptMultiSelect returns the indexes the user kept selected. Every option
// starts selected.
func promptMultiSelect(ctx context.Context, title string, labels []string) ([]int, error) {
	opts := make([]huh.Option[int], len(labels))
	for i, l := range labels {
		opts[i] = huh.NewOption(l, i).Selected(true)
	}
	var picked []int
	ms := huh.NewMultiSelect[int]().
		Title(title).
		Options(opts...).
		Value(&picked)
	if err := runForm(ctx, ms); err != nil {
		return nil, err
	}
	return picked, nil
}
