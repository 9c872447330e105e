package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is a saved fill run, loaded from YAML.
//
//	site: checkout.example.com
//	url: https://checkout.example.com/address
//	strategy: cluster
//	pacing: fast
type Profile struct {
	Site     string `yaml:"site"`
	URL      string `yaml:"url"`
	File     string `yaml:"file"`
	Strategy string `yaml:"strategy"`
	Pacing   string `yaml:"pacing"`
	Headless *bool  `yaml:"headless"`
}

// LoadProfile reads a run profile. Exactly one of url and file must be set.
func LoadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}

	if (p.URL == "") == (p.File == "") {
		return nil, fmt.Errorf("profile %s must set exactly one of url or file", path)
	}
	switch p.Strategy {
	case "", StrategyBatch, StrategyOneByOne, StrategyCluster:
	default:
		return nil, fmt.Errorf("profile %s: unknown strategy %q", path, p.Strategy)
	}
	switch p.Pacing {
	case "", PacingNormal, PacingFast:
	default:
		return nil, fmt.Errorf("profile %s: unknown pacing %q", path, p.Pacing)
	}
	return &p, nil
}
