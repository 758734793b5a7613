package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	var initPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long:  "Print the configuration after applying the config file and AGENTGRAPH_* overrides. Secrets are masked.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}

			data, err := cfg.YAML()
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}

			if initPath != "" {
				if _, err := os.Stat(initPath); err == nil {
					return fmt.Errorf("%s already exists", initPath)
				}
				if err := os.WriteFile(initPath, data, 0o600); err != nil {
					return fmt.Errorf("failed to write config: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), defaultStyles().success.Render("Created "+initPath))
				return nil
			}

			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&initPath, "init", "", "Write the effective configuration to a new file")
	return cmd
}
