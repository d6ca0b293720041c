package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LeagueEntry is one league's base priority and disambiguation hints, as
// loaded from the YAML side-config.
type LeagueEntry struct {
	Priority   int      `yaml:"priority"`
	Country    string   `yaml:"country,omitempty"`
	EnglishPL  []string `yaml:"english_pl_teams,omitempty"` // disambiguation list for ambiguous "Premier League"
}

// LeaguePriorities maps a league name (case-insensitive lookup handled by
// the caller) to its entry.
type LeaguePriorities map[string]LeagueEntry

func LoadLeaguePriorities(path string) (LeaguePriorities, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read league priorities: %w", err)
	}

	var lp LeaguePriorities
	if err := yaml.Unmarshal(data, &lp); err != nil {
		return nil, fmt.Errorf("parse league priorities: %w", err)
	}
	return lp, nil
}
