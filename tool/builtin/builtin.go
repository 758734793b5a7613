package builtin

import "github.com/hupe1980/agentgraph/tool"

// Options selects and configures the builtin tools.
type Options struct {
	// WorkspaceDir enables file_reader and file_writer when non-empty.
	WorkspaceDir string
	// SearchEndpoint overrides the DuckDuckGo HTML endpoint.
	SearchEndpoint string
	// TavilyAPIKey enables tavily_search when non-empty.
	TavilyAPIKey string
}

// Register adds the builtin tools selected by opts to reg.
func Register(reg *tool.Registry, opts Options) error {
	tools := []tool.Tool{
		NewCalculator(),
		NewWebSearch(func(o *WebSearchOptions) {
			if opts.SearchEndpoint != "" {
				o.Endpoint = opts.SearchEndpoint
			}
		}),
	}
	if opts.TavilyAPIKey != "" {
		tools = append(tools, NewTavilySearch(opts.TavilyAPIKey))
	}
	if opts.WorkspaceDir != "" {
		tools = append(tools, NewFileReader(opts.WorkspaceDir), NewFileWriter(opts.WorkspaceDir))
	}

	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
