package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"estate-assistant/internal/app"
	"estate-assistant/internal/config"
	"estate-assistant/internal/logger"
	"estate-assistant/internal/model"
	"estate-assistant/internal/service"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	verbose bool
	userID  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "assistantctl",
		Short:         "Talk to the estate assistant and manage its data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr at debug level")
	root.PersistentFlags().StringVarP(&opts.userID, "user", "u", "cli", "conversation user id")

	root.AddCommand(
		newAskCmd(opts),
		newChatCmd(opts),
		newSummaryCmd(opts),
		newMigrateCmd(opts),
		newBackfillCmd(opts),
	)
	return root
}

// withApp loads configuration, wires the services and runs fn with a context
// cancelled on SIGINT or SIGTERM.
func withApp(opts *rootOptions, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := cfg.Logging
	logCfg.Format = "console"
	if opts.verbose {
		logCfg.Level = "debug"
	} else {
		logCfg.Level = "warn"
	}
	log := logger.New(logCfg, "assistantctl", os.Stderr)

	a, err := app.New(cfg, nil, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a)
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				reply := a.Conversations.ProcessQuery(ctx, opts.userID, strings.Join(args, " "))
				printReply(cmd.OutOrStdout(), reply)
				return nil
			})
		},
	}
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Summarize the conversation so far",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				summary, err := a.Conversations.Summary(ctx, opts.userID)
				if errors.Is(err, service.ErrNoHistory) {
					return fmt.Errorf("no conversation for user %q", opts.userID)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				if reset {
					if err := a.Conversations.EndSession(ctx, opts.userID); err != nil {
						return fmt.Errorf("reset session: %w", err)
					}
				}
				return chatLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), func(text string) model.Reply {
					return a.Conversations.ProcessQuery(ctx, opts.userID, text)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "clear history and cached results before starting")
	return cmd
}

// chatLoop reads one utterance per line until EOF, "exit" or cancellation
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, ask func(string) model.Reply) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
		case "exit", "quit":
			return nil
		default:
			printReply(out, ask(text))
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func printReply(out io.Writer, reply model.Reply) {
	fmt.Fprintln(out, reply.Text)
	if reply.Strategy != "" {
		fmt.Fprintf(out, "[%s, %d properties]\n", reply.Strategy, len(reply.Properties))
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the properties and conversations tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				ctx, cancel := context.WithTimeout(ctx, time.Minute)
				defer cancel()
				if err := a.Repo.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			})
		},
	}
}

func newBackfillCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed properties that have no embedding yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				res, err := a.Embeddings.Backfill(ctx, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "scanned %d, embedded %d, failed %d\n", res.Scanned, res.Success, res.Failed)
				for _, e := range res.Errors {
					fmt.Fprintln(out, "  "+e)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 500, "maximum properties to embed")
	return cmd
}
