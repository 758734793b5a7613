package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentgraph"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
)

func newChatCmd(root *rootOptions) *cobra.Command {
	var (
		conversationID string
		quiet          bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Run one message through the workflow and print live events",
		Example: `  agentgraph chat "What is 2+2, and find one recent fact about Mars missions?"
  AGENTGRAPH_LLM_PROVIDER=openai agentgraph chat -C demo "Compare Go and Rust"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}

			g, err := agentgraph.New(cfg, func(o *agentgraph.Options) {
				o.Logger = root.logger(cfg, logging.LogLevelWarn)
			})
			if err != nil {
				return err
			}
			defer g.Close()

			h, err := g.StartRun(cmd.Context(), conversationID, strings.Join(args, " "), true)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := defaultStyles()
			if !quiet {
				fmt.Fprintln(out, st.muted.Render("conversation "+h.ConversationID()))
				for ev := range h.Events(cmd.Context()) {
					if ev.Kind.Terminal() {
						continue
					}
					fmt.Fprintln(out, st.renderEvent(ev))
				}
			}

			res, runErr := h.Wait(cmd.Context())
			fmt.Fprintln(out, st.renderResult(res, runErr))
			if runErr != nil {
				return fmt.Errorf("run %s: %s", h.RunID(), core.KindOf(runErr))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "C", "", "Conversation id to continue (a new one is created when empty)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the final answer")
	return cmd
}
