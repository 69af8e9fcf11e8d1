// ABOUTME: Scripted agent that replays scenario events on a channel.
// ABOUTME: Emits retrieval, tool, token, and response-break events in order.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event kinds emitted by the agent. The server maps these one-to-one onto
// wire events.
const (
	KindToken       = "token"
	KindToolStart   = "tool_start"
	KindToolEnd     = "tool_end"
	KindRetrieval   = "retrieval"
	KindNewResponse = "new_response"
	KindError       = "error"
)

// Event is one unit of scripted agent output.
type Event struct {
	Kind    string
	Content string // token text or error message
	Tool    string
	Input   string
	Output  string
	RunID   string
	Query   string
	Results []RetrievalResult
}

// Scripted replays scenarios from a script. Safe for concurrent turns; each
// Run gets its own channel.
type Scripted struct {
	script     *Script
	tokenDelay time.Duration
	logger     *slog.Logger
}

// NewScripted creates an agent from a script. A nil script enables the
// built-in echo scenario.
func NewScripted(script *Script, tokenDelay time.Duration, logger *slog.Logger) *Scripted {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scripted{
		script:     script,
		tokenDelay: tokenDelay,
		logger:     logger.With("component", "agent"),
	}
}

// Run replays the scenario matching message. The returned channel is closed
// when the scenario is exhausted or ctx is canceled. Token events are paced
// by the configured delay so streaming looks like streaming.
func (a *Scripted) Run(ctx context.Context, message string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		scenario := a.scenarioFor(message)
		a.replay(ctx, scenario, out)
	}()
	return out
}

func (a *Scripted) scenarioFor(message string) *Scenario {
	if a.script != nil {
		if sc := a.script.pick(message); sc != nil {
			return sc
		}
		a.logger.Debug("no scenario matched, echoing", "message_len", len(message))
	}
	return &Scenario{
		Replies: []string{fmt.Sprintf("You said: %s", message)},
	}
}

func (a *Scripted) replay(ctx context.Context, sc *Scenario, out chan<- Event) {
	if sc.Retrieval != nil {
		if !emit(ctx, out, Event{
			Kind:    KindRetrieval,
			Query:   sc.Retrieval.Query,
			Results: sc.Retrieval.Results,
		}) {
			return
		}
	}

	for _, tool := range sc.Tools {
		runID := uuid.New().String()
		if !emit(ctx, out, Event{Kind: KindToolStart, Tool: tool.Name, Input: tool.Input, RunID: runID}) {
			return
		}
		if !emit(ctx, out, Event{Kind: KindToolEnd, Tool: tool.Name, Output: tool.Output, RunID: runID}) {
			return
		}
	}

	if sc.Error != "" {
		emit(ctx, out, Event{Kind: KindError, Content: sc.Error})
		return
	}

	for i, reply := range sc.Replies {
		if i > 0 {
			if !emit(ctx, out, Event{Kind: KindNewResponse}) {
				return
			}
		}
		for _, tok := range tokenize(reply) {
			if !emit(ctx, out, Event{Kind: KindToken, Content: tok}) {
				return
			}
			if a.tokenDelay > 0 {
				select {
				case <-time.After(a.tokenDelay):
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// tokenize splits a reply into word-sized chunks, keeping the separating
// whitespace attached so concatenation reproduces the reply exactly.
func tokenize(reply string) []string {
	var tokens []string
	var current strings.Builder
	for _, r := range reply {
		current.WriteRune(r)
		if r == ' ' || r == '\n' {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}
