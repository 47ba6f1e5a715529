package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/flowlens/internal/app"
	"github.com/efebarandurmaz/flowlens/internal/config"
	"github.com/efebarandurmaz/flowlens/internal/engine"
	"github.com/efebarandurmaz/flowlens/internal/flow"
	"github.com/efebarandurmaz/flowlens/internal/flowfile"
	"github.com/efebarandurmaz/flowlens/internal/observability"
	"github.com/efebarandurmaz/flowlens/internal/report"
)

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	jsonOut    bool

	cfg    *config.Config
	logger *slog.Logger
	tracer *observability.TracerProvider
	out    io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "flowlens",
		Short:         "Analyze and optimize data-processing flow graphs",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.tracer != nil {
				return c.tracer.Shutdown(context.Background())
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Config file path (defaults and FLOWLENS_* env when empty)")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "Print results as JSON")

	root.AddCommand(
		c.validateCmd(),
		c.analyzeCmd(),
		c.orderCmd(),
		c.patternsCmd(),
		c.optimizeCmd(),
		c.predictCmd(),
		c.exportCmd(),
		c.similarCmd(),
		c.cacheCmd(),
		c.flowsCmd(),
		c.watchCmd(),
		c.submitCmd(),
		c.providersCmd(),
	)
	return root
}

func (c *cli) setup(ctx context.Context) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = observability.NewLogger(cfg.Log)
	slog.SetDefault(c.logger)

	tcfg := observability.DefaultTracingConfig()
	tcfg.OTLPEndpoint = cfg.Tracing.Endpoint
	tcfg.SampleRate = cfg.Tracing.SampleRate
	tcfg.Environment = cfg.Tracing.Environment
	c.tracer, err = observability.InitTracing(ctx, tcfg)
	return err
}

// localEngine is enough for commands that never touch a backend.
func (c *cli) localEngine() *engine.Engine {
	return engine.New(engine.WithLogger(c.logger))
}

// withApp runs fn with every configured backend connected.
func (c *cli) withApp(ctx context.Context, fn func(*app.App) error) error {
	a, err := app.New(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			c.logger.Warn("closing backends", "error", err)
		}
	}()
	return fn(a)
}

// load reads a flow file and logs its structural warnings.
func (c *cli) load(path string) (*flow.Flow, error) {
	f, issues, err := flowfile.Load(path)
	if err != nil {
		return nil, err
	}
	for _, is := range issues {
		c.logger.Warn("flow issue", "file", path, "kind", is.Kind, "blocks", is.BlockIDs, "message", is.Message)
	}
	return f, nil
}

func (c *cli) printer() *report.Printer { return report.NewPrinter(c.out) }

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
