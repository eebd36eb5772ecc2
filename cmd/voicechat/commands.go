package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/arsaha28/ccp/internal/conversation"
	"github.com/arsaha28/ccp/internal/intent"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agents offered by the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if opts.server == "" {
			return errors.New("--server is required to list agents")
		}
		cat, err := intent.NewProxyClient(opts.server).Agents(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetch agents: %w", err)
		}
		printAgents(cmd.OutOrStdout(), cat)
		return nil
	},
}

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List quick actions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printActions(cmd.OutOrStdout())
	},
}

func printAgents(w io.Writer, cat intent.Catalog) {
	if len(cat.Agents) == 0 {
		fmt.Fprintln(w, "no agents configured")
		return
	}
	for _, a := range cat.Agents {
		marker := " "
		if a.Key == cat.DefaultAgent {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-12s %-28s %s\n", marker, a.Key, a.Name, a.Description)
	}
}

func printActions(w io.Writer) {
	for _, qa := range conversation.QuickActions() {
		fmt.Fprintf(w, "/%s  %s\n", qa.ID, qa.Label)
	}
}
