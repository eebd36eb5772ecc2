// Command voicechat is a terminal client for the banking support agent.
// It runs the turn controller locally against either a backend proxy or
// the built-in keyword matcher.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	server   string
	agent    string
	language string
	timeout  time.Duration
	verbose  bool
}

var opts options

var rootCmd = &cobra.Command{
	Use:          "voicechat",
	Short:        "Chat with the Retail Bank support agent from a terminal",
	SilenceUsage: true,
	Long: `voicechat starts a conversation with the support agent.

Type a question and press enter. Commands:
  /new            start a new conversation
  /agent <id>     switch agent (starts a new conversation)
  /actions        list quick actions
  /<n>            run quick action n
  /quit           exit

Without --server the local keyword matcher answers.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if opts.verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context(), newResolver(opts.server), opts, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&opts.server, "server", "", "backend API root, e.g. http://localhost:3001/api")
	f.StringVar(&opts.agent, "agent", "", "agent key or id to talk to")
	f.StringVar(&opts.language, "lang", "en-US", "language code")
	f.DurationVar(&opts.timeout, "timeout", 15*time.Second, "resolver timeout per turn")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(agentsCmd, actionsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
