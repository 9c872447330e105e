package config

import (
	"fmt"
	"sync"
)

const (
	// SectionIDAutofill is the identifier for the autofill run settings.
	SectionIDAutofill = "autofill"

	StrategyBatch    = "batch"
	StrategyOneByOne = "one-by-one"
	StrategyCluster  = "cluster"

	PacingNormal = "normal"
	PacingFast   = "fast"

	DefaultBudgetTokens = 3000
)

// AutofillSection holds how runs are executed.
type AutofillSection struct {
	Strategy       string
	Debug          bool
	FloatingPrompt bool
	Pacing         string
	BudgetTokens   int
	mu             sync.RWMutex
}

// NewAutofillSection creates the section with defaults.
func NewAutofillSection() *AutofillSection {
	s := &AutofillSection{}
	s.Reset()
	return s
}

func (s *AutofillSection) ID() string { return SectionIDAutofill }

func (s *AutofillSection) Title() string { return "Autofill" }

func (s *AutofillSection) Description() string {
	return "Fill strategy, pacing between steps, and the token budget of one match request."
}

// Data returns the current configuration data.
func (s *AutofillSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"strategy":        s.Strategy,
		"debug":           s.Debug,
		"floating_prompt": s.FloatingPrompt,
		"pacing":          s.Pacing,
		"budget_tokens":   s.BudgetTokens,
	}
}

// SetData applies data. Files written before the strategy key existed carry
// the one_by_one and cluster_mode toggles; one-by-one wins when both are set.
func (s *AutofillSection) SetData(data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := data["strategy"]; !ok {
		var oneByOne, cluster bool
		setBool(data, "one_by_one", &oneByOne)
		setBool(data, "cluster_mode", &cluster)
		switch {
		case oneByOne:
			s.Strategy = StrategyOneByOne
		case cluster:
			s.Strategy = StrategyCluster
		}
	}

	setString(data, "strategy", &s.Strategy)
	setBool(data, "debug", &s.Debug)
	setBool(data, "floating_prompt", &s.FloatingPrompt)
	setString(data, "pacing", &s.Pacing)
	if n, ok := intValue(data["budget_tokens"]); ok && n > 0 {
		s.BudgetTokens = n
	}
	return nil
}

// Validate checks the enumerated settings.
func (s *AutofillSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.Strategy {
	case StrategyBatch, StrategyOneByOne, StrategyCluster:
	default:
		return fmt.Errorf("unknown strategy %q", s.Strategy)
	}
	switch s.Pacing {
	case PacingNormal, PacingFast:
	default:
		return fmt.Errorf("unknown pacing %q", s.Pacing)
	}
	if s.BudgetTokens <= 0 {
		return fmt.Errorf("budget_tokens must be positive")
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *AutofillSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Strategy = StrategyBatch
	s.Debug = false
	s.FloatingPrompt = true
	s.Pacing = PacingNormal
	s.BudgetTokens = DefaultBudgetTokens
}

// Snapshot returns a copy of the settings safe to read without locking.
func (s *AutofillSection) Snapshot() AutofillSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return AutofillSettings{
		Strategy:       s.Strategy,
		Debug:          s.Debug,
		FloatingPrompt: s.FloatingPrompt,
		Pacing:         s.Pacing,
		BudgetTokens:   s.BudgetTokens,
	}
}

// AutofillSettings is a point-in-time copy of AutofillSection.
type AutofillSettings struct {
	Strategy       string
	Debug          bool
	FloatingPrompt bool
	Pacing         string
	BudgetTokens   int
}
