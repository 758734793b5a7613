package builtin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/agentgraph/tool"
)

// maxReadBytes caps how much of a file file_reader returns.
const maxReadBytes = 64 << 10

// NewFileReader returns the file_reader tool. Paths resolve inside dir;
// attempts to escape it fail.
func NewFileReader(dir string) tool.Tool {
	return tool.NewFunctionTool(
		"file_reader",
		"Read a text file from the workspace directory.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Path relative to the workspace directory"},
			},
			"required": []string{"path"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			path, _ := args["path"].(string)

			root, err := os.OpenRoot(dir)
			if err != nil {
				return nil, tool.NewToolError("file_reader", err.Error(), "WORKSPACE_UNAVAILABLE")
			}
			defer root.Close()

			f, err := root.Open(filepath.Clean(path))
			if err != nil {
				return nil, tool.NewToolError("file_reader", err.Error(), "READ_FAILED")
			}
			defer f.Close()

			data, err := io.ReadAll(io.LimitReader(f, maxReadBytes+1))
			if err != nil {
				return nil, tool.NewToolError("file_reader", err.Error(), "READ_FAILED")
			}
			truncated := len(data) > maxReadBytes
			if truncated {
				data = data[:maxReadBytes]
			}
			return map[string]any{"path": path, "content": string(data), "truncated": truncated}, nil
		},
	)
}

// NewFileWriter returns the file_writer tool, which creates or replaces a
// file inside dir.
func NewFileWriter(dir string) tool.Tool {
	return tool.NewFunctionTool(
		"file_writer",
		"Write text content to a file in the workspace directory.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"filename": map[string]any{"type": "string", "description": "Name of the file"},
				"content":  map[string]any{"type": "string", "description": "Content to write"},
			},
			"required": []string{"filename", "content"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			name, _ := args["filename"].(string)
			content, _ := args["content"].(string)

			root, err := os.OpenRoot(dir)
			if err != nil {
				return nil, tool.NewToolError("file_writer", err.Error(), "WORKSPACE_UNAVAILABLE")
			}
			defer root.Close()

			f, err := root.Create(filepath.Clean(name))
			if err != nil {
				return nil, tool.NewToolError("file_writer", err.Error(), "WRITE_FAILED")
			}
			if _, err := io.WriteString(f, content); err != nil {
				f.Close()
				return nil, tool.NewToolError("file_writer", err.Error(), "WRITE_FAILED")
			}
			if err := f.Close(); err != nil {
				return nil, tool.NewToolError("file_writer", err.Error(), "WRITE_FAILED")
			}
			return fmt.Sprintf("File %s saved.", name), nil
		},
	)
}
