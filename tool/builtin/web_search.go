package builtin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hupe1980/agentgraph/tool"
)

const (
	// WebSearchName is the registry name of the DuckDuckGo search tool.
	WebSearchName = "web_search"
	// DefaultSearchEndpoint is the DuckDuckGo HTML endpoint.
	DefaultSearchEndpoint = "https://html.duckduckgo.com/html/"
)

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// WebSearchOptions configures the web_search tool.
type WebSearchOptions struct {
	Endpoint   string
	HTTPClient *http.Client
	UserAgent  string
}

// NewWebSearch returns the web_search tool, which scrapes the DuckDuckGo
// HTML results page.
func NewWebSearch(optFns ...func(o *WebSearchOptions)) tool.Tool {
	opts := WebSearchOptions{
		Endpoint:   DefaultSearchEndpoint,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		UserAgent:  "agentgraph/1.0",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return tool.NewFunctionTool(
		WebSearchName,
		"Search the web for current information on any topic. Use this for recent information, news or data.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":       map[string]any{"type": "string", "description": "Search query to find information on the web"},
				"max_results": map[string]any{"type": "integer", "description": "Maximum number of search results to return (default 5)"},
			},
			"required": []string{"query"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			maxResults := intArg(args, "max_results", 5)
			results, err := search(ctx, opts, query, maxResults)
			if err != nil {
				return nil, tool.NewToolError(WebSearchName, err.Error(), "SEARCH_FAILED")
			}
			return formatResults(results), nil
		},
	)
}

func search(ctx context.Context, opts WebSearchOptions, query string, maxResults int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.Endpoint+"?"+url.Values{"q": {query}}.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", opts.UserAgent)

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []SearchResult
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		a := s.Find("a.result__a").First()
		title := strings.TrimSpace(a.Text())
		if title == "" {
			return true
		}
		href, _ := a.Attr("href")
		results = append(results, SearchResult{
			Title:   title,
			Snippet: strings.TrimSpace(s.Find(".result__snippet").First().Text()),
			Link:    resolveLink(href),
		})
		return len(results) < maxResults
	})
	return results, nil
}

// resolveLink unwraps DuckDuckGo redirect links (/l/?uddg=<target>).
func resolveLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func formatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No search results found."
	}
	var b strings.Builder
	b.WriteString("Web Search Results:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   Source: %s\n\n", i+1, r.Title, r.Snippet, r.Link)
	}
	return b.String()
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return def
}
