// ABOUTME: TOML scenario loading for the scripted agent.
// ABOUTME: Scenarios map user-input matchers to canned event sequences.

package agent

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Script is a parsed scenario file.
type Script struct {
	Scenarios []Scenario `toml:"scenario"`
}

// Scenario is one canned exchange. Match is a case-insensitive substring
// tested against the user message; empty matches everything and serves as
// the default.
type Scenario struct {
	Match     string     `toml:"match"`
	Replies   []string   `toml:"replies"`
	Error     string     `toml:"error"`
	Tools     []ToolStep `toml:"tool"`
	Retrieval *Retrieval `toml:"retrieval"`
}

// ToolStep is one scripted tool invocation.
type ToolStep struct {
	Name   string `toml:"name"`
	Input  string `toml:"input"`
	Output string `toml:"output"`
}

// Retrieval is a scripted retrieval batch.
type Retrieval struct {
	Query   string            `toml:"query"`
	Results []RetrievalResult `toml:"result"`
}

// RetrievalResult is one scripted document hit.
type RetrievalResult struct {
	Text   string  `toml:"text"`
	Score  float64 `toml:"score"`
	Source string  `toml:"source"`
}

// LoadScript reads and validates a scenario file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script file: %w", err)
	}

	var script Script
	if _, err := toml.Decode(string(data), &script); err != nil {
		return nil, fmt.Errorf("parsing script file: %w", err)
	}

	if err := script.Validate(); err != nil {
		return nil, fmt.Errorf("validating script file: %w", err)
	}
	return &script, nil
}

// Validate checks that every scenario produces something.
func (s *Script) Validate() error {
	if len(s.Scenarios) == 0 {
		return fmt.Errorf("script defines no scenarios")
	}
	for i, sc := range s.Scenarios {
		if len(sc.Replies) == 0 && sc.Error == "" {
			return fmt.Errorf("scenario %d (match %q) has neither replies nor error", i, sc.Match)
		}
		for j, tool := range sc.Tools {
			if tool.Name == "" {
				return fmt.Errorf("scenario %d tool %d has no name", i, j)
			}
		}
	}
	return nil
}

// pick returns the first scenario whose matcher hits the message, preferring
// specific matchers over the default.
func (s *Script) pick(message string) *Scenario {
	lower := strings.ToLower(message)
	var fallback *Scenario
	for i := range s.Scenarios {
		sc := &s.Scenarios[i]
		if sc.Match == "" {
			if fallback == nil {
				fallback = sc
			}
			continue
		}
		if strings.Contains(lower, strings.ToLower(sc.Match)) {
			return sc
		}
	}
	return fallback
}
