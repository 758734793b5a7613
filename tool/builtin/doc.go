// Package builtin provides the stock tools offered to graph nodes:
// calculator, web_search (DuckDuckGo HTML), tavily_search, file_reader and
// file_writer. File tools are confined to a workspace directory.
package builtin
