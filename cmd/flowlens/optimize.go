package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/flowlens/internal/app"
	"github.com/efebarandurmaz/flowlens/internal/engine"
	"github.com/efebarandurmaz/flowlens/internal/flowfile"
)

var errNoRepository = errors.New("no flow repository configured (set graph.uri)")

func (c *cli) optimizeCmd() *cobra.Command {
	var (
		out   string
		store bool
		index bool
	)
	cmd := &cobra.Command{
		Use:   "optimize <file>",
		Short: "Apply accepted optimizations and report the expected improvement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.load(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if store && a.Repository == nil {
					return errNoRepository
				}
				res, err := a.Engine.Optimize(cmd.Context(), f)
				if err != nil {
					return err
				}
				if err := c.persist(cmd.Context(), a, res, out, store, index); err != nil {
					return err
				}
				if c.jsonOut {
					return c.printJSON(res)
				}
				c.printer().Optimization(res)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the optimized flow to this file (.json, .yaml or .hcl)")
	cmd.Flags().BoolVar(&store, "store", false, "Store the optimized flow in the flow repository")
	cmd.Flags().BoolVar(&index, "index", false, "Add the input flow to the similarity index")
	return cmd
}

func (c *cli) persist(ctx context.Context, a *app.App, res *engine.Result, out string, store, index bool) error {
	if out != "" {
		if err := flowfile.Save(out, res.Optimized); err != nil {
			return err
		}
		c.logger.Info("optimized flow written", "file", out)
	}
	if store {
		if err := a.Repository.StoreFlow(ctx, res.Optimized); err != nil {
			return fmt.Errorf("store flow: %w", err)
		}
	}
	if index {
		if err := a.Engine.IndexFlow(ctx, res.Original); err != nil {
			return fmt.Errorf("index flow: %w", err)
		}
	}
	return nil
}

func (c *cli) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the model cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show model count, usage and average accuracy",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withApp(cmd.Context(), func(a *app.App) error {
					s := a.Engine.CacheStats()
					if c.jsonOut {
						return c.printJSON(s)
					}
					c.printer().CacheStats(s)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Drop every cached model",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withApp(cmd.Context(), func(a *app.App) error {
					if err := a.Engine.ClearCache(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(c.out, "cache cleared")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "outcome <signature> <observed-improvement>",
			Short: "Record the improvement observed after applying a cached model",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				observed, err := strconv.ParseFloat(args[1], 64)
				if err != nil {
					return fmt.Errorf("observed improvement: %w", err)
				}
				return c.withApp(cmd.Context(), func(a *app.App) error {
					acc, err := a.Engine.RecordOutcome(args[0], observed)
					if err != nil {
						return err
					}
					if c.jsonOut {
						return c.printJSON(map[string]any{"signature": args[0], "accuracy": acc})
					}
					fmt.Fprintf(c.out, "accuracy now %.3f\n", acc)
					return nil
				})
			},
		},
	)
	return cmd
}

func (c *cli) flowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flows",
		Short: "Browse flows in the flow repository",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored flows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRepository(cmd, func(a *app.App) error {
				flows, err := a.Repository.ListFlows(cmd.Context())
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.printJSON(flows)
				}
				for _, s := range flows {
					fmt.Fprintf(c.out, "%-24s %-24s %3d blocks  v%d  %s\n",
						s.ID, s.Name, s.Blocks, s.Version, s.UpdatedAt.Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}

	var out string
	get := &cobra.Command{
		Use:   "get <flow-id>",
		Short: "Fetch a stored flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRepository(cmd, func(a *app.App) error {
				f, err := a.Repository.LoadFlow(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if out != "" {
					return flowfile.Save(out, f)
				}
				return c.printJSON(flowfile.FromFlow(f))
			})
		},
	}
	get.Flags().StringVarP(&out, "out", "o", "", "Write the flow to this file instead of stdout")

	downstream := &cobra.Command{
		Use:   "downstream <flow-id> <block-id>",
		Short: "List blocks reachable from a block",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRepository(cmd, func(a *app.App) error {
				ids, err := a.Repository.Downstream(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.printJSON(ids)
				}
				for _, id := range ids {
					fmt.Fprintln(c.out, id)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, get, downstream)
	return cmd
}

func (c *cli) withRepository(cmd *cobra.Command, fn func(*app.App) error) error {
	return c.withApp(cmd.Context(), func(a *app.App) error {
		if a.Repository == nil {
			return errNoRepository
		}
		return fn(a)
	})
}
