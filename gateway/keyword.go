package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentgraph/core"
)

// DefaultResearchKeywords trigger delegation to the research specialist.
var DefaultResearchKeywords = []string{
	"search", "find", "research", "latest", "current", "recent",
	"news", "what is", "information", "data", "statistics",
	"compare", "versus", "vs", "trends", "developments",
}

// KeywordRouter is a deterministic supervisor gateway that needs no model.
// On a fresh user message it delegates to Target when the message contains
// one of Keywords and otherwise acknowledges the message. Once a specialist
// has reported back it returns the specialist's findings as the final answer.
type KeywordRouter struct {
	Target   string
	Keywords []string
}

// NewKeywordRouter creates a router delegating to target.
func NewKeywordRouter(target string) *KeywordRouter {
	return &KeywordRouter{Target: target, Keywords: DefaultResearchKeywords}
}

// Decide implements Gateway.
func (k *KeywordRouter) Decide(_ context.Context, req Request) (core.Decision, error) {
	var lastUser string
	for i := len(req.Turns) - 1; i >= 0; i-- {
		t := req.Turns[i]
		if t.Role == core.RoleUser {
			lastUser = t.Content
			break
		}
		if t.Role == core.RoleAgent && t.Node != req.Node && t.Node != "" {
			return core.FinalAnswer{Text: t.Content}, nil
		}
	}

	if lastUser == "" {
		return nil, &core.MalformedDecisionError{Reason: "no user message to route"}
	}

	lower := strings.ToLower(lastUser)
	for _, kw := range k.Keywords {
		if strings.Contains(lower, kw) {
			return core.Delegate{Target: k.Target, Instructions: fmt.Sprintf("Research the following request: %s", lastUser)}, nil
		}
	}
	return core.FinalAnswer{Text: fmt.Sprintf("I received your message: %q. No language model is configured, so I can only route research requests.", lastUser)}, nil
}

// SearchPlanner is a deterministic specialist gateway that needs no model.
// It first requests Tool with the delegation instructions as the query and,
// once results are in, reports them back as its final answer.
type SearchPlanner struct {
	Tool string
}

// Decide implements Gateway.
func (s *SearchPlanner) Decide(_ context.Context, req Request) (core.Decision, error) {
	var results []string
	for i := len(req.Turns) - 1; i >= 0; i-- {
		t := req.Turns[i]
		switch {
		case t.Role == core.RoleTool && t.Node == req.Node:
			results = append([]string{t.Content}, results...)
			continue
		case len(results) > 0:
			return core.FinalAnswer{Text: strings.Join(results, "\n\n")}, nil
		}

		if t.Role == core.RoleUser || t.Role == core.RoleAgent {
			query := t.Content
			if prefix := "Research the following request: "; strings.HasPrefix(query, prefix) {
				query = strings.TrimPrefix(query, prefix)
			}
			return core.ToolCalls{Calls: []core.ToolCall{{
				ID:        core.NewID(),
				Name:      s.Tool,
				Arguments: map[string]any{"query": query},
			}}}, nil
		}
	}
	if len(results) > 0 {
		return core.FinalAnswer{Text: strings.Join(results, "\n\n")}, nil
	}
	return nil, &core.MalformedDecisionError{Reason: "nothing to search for"}
}
