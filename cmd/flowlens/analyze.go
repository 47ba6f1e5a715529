package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/flowlens/internal/app"
	"github.com/efebarandurmaz/flowlens/internal/flowfile"
	"github.com/efebarandurmaz/flowlens/internal/report"
)

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Load a flow file and list structural warnings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, issues, err := flowfile.Load(args[0])
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(map[string]any{"flow_id": f.ID, "issues": issues})
			}
			if len(issues) == 0 {
				fmt.Fprintf(c.out, "%s: %d blocks, %d connections, no issues\n", f.ID, len(f.Blocks), len(f.Connections))
				return nil
			}
			for _, is := range issues {
				fmt.Fprintf(c.out, "%-18s %s\n", is.Kind, is.Message)
			}
			return nil
		},
	}
}

func (c *cli) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file>",
		Short: "Compute features, execution order, parallel groups and findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.load(args[0])
			if err != nil {
				return err
			}
			a, err := c.localEngine().Inspect(cmd.Context(), f)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(a)
			}
			c.printer().Analysis(a)
			return nil
		},
	}
}

func (c *cli) orderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order <file>",
		Short: "Print the execution order and parallel groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.load(args[0])
			if err != nil {
				return err
			}
			e := c.localEngine()
			order, groups := e.ResolveExecutionOrder(f), e.ParallelGroups(f)
			if c.jsonOut {
				return c.printJSON(map[string]any{"order": order, "parallel_groups": groups})
			}
			for i, id := range order {
				fmt.Fprintf(c.out, "%3d  %s\n", i+1, id)
			}
			for _, g := range groups {
				fmt.Fprintf(c.out, "parallel: %s\n", strings.Join(g, ", "))
			}
			return nil
		},
	}
}

func (c *cli) patternsCmd() *cobra.Command {
	var failUnsafe bool
	cmd := &cobra.Command{
		Use:   "patterns <file>",
		Short: "Detect anti-patterns and optimization opportunities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.load(args[0])
			if err != nil {
				return err
			}
			e := c.localEngine()
			r := e.DetectPatterns(f, e.Analyze(f))
			if c.jsonOut {
				if err := c.printJSON(r); err != nil {
					return err
				}
			} else {
				c.printer().Patterns(r)
			}
			if failUnsafe && !r.SafeToExecute() {
				return errors.New("flow has a circular dependency")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failUnsafe, "fail-unsafe", false, "Exit non-zero when the flow has a circular dependency")
	return cmd
}

func (c *cli) predictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict <file>",
		Short: "Estimate latency and bottlenecks, compared with recorded history when configured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.load(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				p := a.Engine.PredictPerformance(cmd.Context(), f)
				if c.jsonOut {
					return c.printJSON(p)
				}
				c.printer().Prediction(f.ID, p)
				return nil
			})
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	var (
		format    string
		optimized bool
		out       string
	)
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Render a flow as a DOT or Mermaid diagram with findings highlighted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.load(args[0])
			if err != nil {
				return err
			}
			e := c.localEngine()
			if optimized {
				res, err := e.Optimize(cmd.Context(), f)
				if err != nil {
					return err
				}
				f = res.Optimized
			}
			h := report.HighlightsFrom(e.DetectPatterns(f, e.Analyze(f)))

			var text string
			switch format {
			case "dot":
				text = report.ExportDOT(f, h)
			case "mermaid":
				text = report.ExportMermaid(f, h)
			default:
				return fmt.Errorf("unknown format %q (want dot or mermaid)", format)
			}
			if out == "" {
				_, err = fmt.Fprint(c.out, text)
				return err
			}
			return os.WriteFile(out, []byte(text), 0o644)
		},
	}
	cmd.Flags().StringVar(&format, "format", "dot", "Diagram format: dot or mermaid")
	cmd.Flags().BoolVar(&optimized, "optimized", false, "Export the optimized flow instead of the input")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to a file instead of stdout")
	return cmd
}

func (c *cli) similarCmd() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "similar <file> [dir]",
		Short: "Find indexed flows with a similar shape",
		Long: "Find indexed flows with a similar shape. When dir is given, every flow file in it is\n" +
			"indexed first; without a vector store configured that is the only corpus searched.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.load(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if len(args) == 2 {
					n, err := c.indexDir(cmd, a, args[1])
					if err != nil {
						return err
					}
					c.logger.Info("indexed flows", "dir", args[1], "count", n)
				}
				matches, err := a.Engine.SimilarFlows(cmd.Context(), f, k)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.printJSON(matches)
				}
				if len(matches) == 0 {
					fmt.Fprintln(c.out, "no similar flows")
				}
				for _, m := range matches {
					fmt.Fprintf(c.out, "%.3f  %-24s %-24s %d blocks\n", m.Score, m.FlowID, m.Name, m.Nodes)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&k, "top", "k", 5, "Number of matches")
	return cmd
}

func (c *cli) indexDir(cmd *cobra.Command, a *app.App, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !flowfile.Supported(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		f, _, err := flowfile.Load(path)
		if err != nil {
			c.logger.Warn("skipping flow file", "file", path, "error", err)
			continue
		}
		if err := a.Engine.IndexFlow(cmd.Context(), f); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
