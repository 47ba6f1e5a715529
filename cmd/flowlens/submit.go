package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/flowlens/internal/app"
	"github.com/efebarandurmaz/flowlens/internal/llm"
	temporalmod "github.com/efebarandurmaz/flowlens/internal/temporal"
)

func (c *cli) submitCmd() *cobra.Command {
	var (
		wait  bool
		input temporalmod.OptimizeInput
	)
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Start an optimization workflow on the Temporal worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.load(args[0])
			if err != nil {
				return err
			}
			input.Flow = f

			tc, err := temporalclient.Dial(temporalclient.Options{
				HostPort:  c.cfg.Temporal.Host,
				Namespace: c.cfg.Temporal.Namespace,
				Logger:    c.logger,
			})
			if err != nil {
				return fmt.Errorf("temporal client: %w", err)
			}
			defer tc.Close()

			run, err := temporalmod.Submit(cmd.Context(), tc, c.cfg.Temporal.TaskQueue, input)
			if err != nil {
				return err
			}
			if !wait {
				if c.jsonOut {
					return c.printJSON(map[string]string{"workflow_id": run.GetID(), "run_id": run.GetRunID()})
				}
				fmt.Fprintf(c.out, "started workflow %s (run %s)\n", run.GetID(), run.GetRunID())
				return nil
			}

			var out temporalmod.OptimizeOutput
			if err := run.Get(cmd.Context(), &out); err != nil {
				return fmt.Errorf("workflow %s: %w", run.GetID(), err)
			}
			if c.jsonOut {
				return c.printJSON(out)
			}
			fmt.Fprintf(c.out, "workflow %s: %d applied, %.1f%% expected improvement, stored=%t indexed=%t\n",
				run.GetID(), len(out.Applied), out.ExpectedImprovement, out.Stored, out.Indexed)
			for _, w := range out.Warnings {
				fmt.Fprintf(c.out, "warning: %s\n", w)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the workflow result")
	cmd.Flags().BoolVar(&input.Force, "force", false, "Optimize even when a circular dependency is found")
	cmd.Flags().BoolVar(&input.Store, "store", false, "Store the optimized flow in the flow repository")
	cmd.Flags().BoolVar(&input.Index, "index", false, "Add the flow to the similarity index")
	return cmd
}

func (c *cli) providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List available oracle providers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(c.out, "Available oracle providers:")
			fmt.Fprintln(c.out)
			names := app.Providers().Names()
			sort.Strings(names)
			for _, name := range names {
				url := llm.KnownProviders[name]
				if url == "" {
					url = "(set llm.base_url to any OpenAI-compatible endpoint)"
				}
				fmt.Fprintf(c.out, "  %-14s %s\n", name, url)
			}
			fmt.Fprintln(c.out, "  none           (heuristics only)")
			fmt.Fprintln(c.out)
			fmt.Fprintln(c.out, "Configure in the config file or via environment:")
			fmt.Fprintln(c.out, "  FLOWLENS_LLM_PROVIDER=groq")
			fmt.Fprintln(c.out, "  FLOWLENS_LLM_API_KEY=gsk_...")
			fmt.Fprintln(c.out, "  FLOWLENS_LLM_MODEL=llama-3.3-70b-versatile")
		},
	}
}
