package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/agentgraph/tool"
)

// DefaultTavilyEndpoint is the Tavily search API endpoint.
const DefaultTavilyEndpoint = "https://api.tavily.com/search"

// TavilyOptions configures the tavily_search tool.
type TavilyOptions struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// NewTavilySearch returns the tavily_search tool backed by the Tavily API.
func NewTavilySearch(apiKey string, optFns ...func(o *TavilyOptions)) tool.Tool {
	opts := TavilyOptions{
		APIKey:     apiKey,
		Endpoint:   DefaultTavilyEndpoint,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return tool.NewFunctionTool(
		"tavily_search",
		"Advanced web search returning a synthesized answer plus detailed, recent sources.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":       map[string]any{"type": "string", "description": "Search query"},
				"max_results": map[string]any{"type": "integer", "description": "Maximum number of results (default 5)"},
			},
			"required": []string{"query"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			out, err := tavilySearch(ctx, opts, query, intArg(args, "max_results", 5))
			if err != nil {
				return nil, tool.NewToolError("tavily_search", err.Error(), "SEARCH_FAILED")
			}
			return out, nil
		},
	)
}

func tavilySearch(ctx context.Context, opts TavilyOptions, query string, maxResults int) (string, error) {
	if opts.APIKey == "" {
		return "", fmt.Errorf("tavily api key not configured")
	}
	body, err := json.Marshal(map[string]any{
		"api_key":             opts.APIKey,
		"query":               query,
		"search_depth":        "advanced",
		"include_answer":      true,
		"include_raw_content": false,
		"max_results":         maxResults,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tavily request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tavily returned status %d", resp.StatusCode)
	}

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode tavily response: %w", err)
	}

	var b strings.Builder
	b.WriteString("Tavily Search Results:\n\n")
	if tr.Answer != "" {
		fmt.Fprintf(&b, "Answer: %s\n\n", tr.Answer)
	}
	for i, r := range tr.Results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   Source: %s\n\n", i+1, r.Title, r.Content, r.URL)
	}
	return b.String(), nil
}
