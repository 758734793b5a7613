// Command agentgraph serves the multi-agent workflow engine over HTTP and
// runs one-shot chats from the terminal.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
