package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/flowlens/internal/app"
	"github.com/efebarandurmaz/flowlens/internal/flowfile"
)

func (c *cli) watchCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-optimize flow files in a directory whenever they change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				events, err := flowfile.Watch(cmd.Context(), args[0],
					flowfile.WithInitialScan(true),
					flowfile.WithWatchLogger(c.logger),
				)
				if err != nil {
					return err
				}
				c.logger.Info("watching", "dir", args[0])
				for ev := range events {
					if ev.Err != nil {
						c.logger.Warn("flow file rejected", "file", ev.Path, "error", ev.Err)
						continue
					}
					res, err := a.Engine.Optimize(cmd.Context(), ev.Flow)
					if err != nil {
						c.logger.Warn("optimize", "file", ev.Path, "error", err)
						continue
					}
					if outDir != "" {
						out := optimizedPath(outDir, ev.Path)
						if err := flowfile.Save(out, res.Optimized); err != nil {
							c.logger.Warn("write optimized flow", "file", out, "error", err)
						}
					}
					if c.jsonOut {
						if err := c.printJSON(res); err != nil {
							return err
						}
						continue
					}
					fmt.Fprintf(c.out, "%s: %d applied, %.1f%% expected improvement, cache %s\n",
						ev.Path, len(res.Applied), res.ExpectedImprovement, hitMiss(res.CacheHit))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Write optimized flows to this directory")
	return cmd
}

func hitMiss(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// optimizedPath names the output file for a watched input.
func optimizedPath(dir, input string) string {
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	return filepath.Join(dir, base[:len(base)-len(ext)]+".optimized"+ext)
}
