package main

import (
	"context"
	"fmt"

	"github.com/danmuck/mupipe/client"
	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call <name> [key=value...]",
	Short: "Run any registered command",
	Example: `  muctl call find query="flag:unread" max_num=20
  muctl call view docid=1234 timeout=5`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, words []string) error {
		args, err := parseArgs(words[1:])
		if err != nil {
			return err
		}
		return withEngine(cmd, nil, func(ctx context.Context, e *client.Engine) (any, error) {
			return e.Call(ctx, words[0], args)
		})
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the worker answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEngine(cmd, nil, func(ctx context.Context, e *client.Engine) (any, error) {
			return e.Ping(ctx, nil)
		})
	},
}

var indexOpts struct {
	cleanup   bool
	lazyCheck bool
	quiet     bool
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the mail store and print the final summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		progress := func(_ string, frame map[string]any) {
			if indexOpts.quiet {
				return
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "indexing: checked=%v updated=%v\n", frame["checked"], frame["updated"])
		}
		args := client.Args{
			"cleanup":    indexOpts.cleanup,
			"lazy_check": indexOpts.lazyCheck,
		}
		return withEngine(cmd, progress, func(ctx context.Context, e *client.Engine) (any, error) {
			return e.Index(ctx, args)
		})
	},
}

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the commands the client knows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := resolveConfig()
		if err != nil {
			return err
		}
		list := make([]map[string]string, 0)
		for _, c := range client.DefaultRegistry().List() {
			list = append(list, map[string]string{
				"name":   c.Name,
				"wire":   c.Wire,
				"policy": c.Policy.String(),
			})
		}
		return writeResult(cmd.OutOrStdout(), cfg.Output, list)
	},
}

func init() {
	indexCmd.Flags().BoolVar(&indexOpts.cleanup, "cleanup", true, "remove messages no longer in the store")
	indexCmd.Flags().BoolVar(&indexOpts.lazyCheck, "lazy-check", false, "skip directories whose mtime has not changed")
	indexCmd.Flags().BoolVarP(&indexOpts.quiet, "quiet", "q", false, "do not print progress")

	rootCmd.AddCommand(callCmd, pingCmd, indexCmd, commandsCmd)
}
