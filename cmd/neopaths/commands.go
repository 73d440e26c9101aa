package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	neopaths "github.com/saulfrancisco-ruizacevedo/go-neopaths"
	"github.com/saulfrancisco-ruizacevedo/go-neopaths/config"
	"github.com/saulfrancisco-ruizacevedo/go-neopaths/models"
	"github.com/saulfrancisco-ruizacevedo/go-neopaths/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	inputPath  string

	rootCmd = &cobra.Command{
		Use:           "neopaths",
		Short:         "Resilient path searches over a property graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serves the search endpoints over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Checks that the graph database is reachable",
		Args:  cobra.NoArgs,
		RunE:  runPing,
	}
	queryCmd = &cobra.Command{
		Use:   "query",
		Short: "Runs one search and prints the result as JSON",
	}
	regulationCmd = &cobra.Command{
		Use:   "regulation",
		Short: "Regulation search; reads a request like {\"source\":...,\"target\":...,\"step\":3,...}",
		Args:  cobra.NoArgs,
		RunE: runQuery(func(ctx context.Context, e *neopaths.Engine, body []byte) (any, error) {
			var req models.RegulationRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return e.Regulation(ctx, req)
		}),
	}
	deepCmd = &cobra.Command{
		Use:   "deep",
		Short: "Deep search; reads a request like {\"ids\":[...],\"edges\":[...]}",
		Args:  cobra.NoArgs,
		RunE: runQuery(func(ctx context.Context, e *neopaths.Engine, body []byte) (any, error) {
			var req models.DeepRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return e.Deep(ctx, req)
		}),
	}
	simpleCmd = &cobra.Command{
		Use:   "simple",
		Short: "Simple search; reads a request like {\"ids\":[...],\"direction\":\"out\",\"times\":2}",
		Args:  cobra.NoArgs,
		RunE: runQuery(func(ctx context.Context, e *neopaths.Engine, body []byte) (any, error) {
			var req models.SimpleRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return e.Simple(ctx, req)
		}),
	}
	vertexCmd = &cobra.Command{
		Use:   "vertex [id]",
		Short: "Prints one vertex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, nil, func(ctx context.Context, e *neopaths.Engine, _ *config.Config, _ *zap.Logger) error {
				v, err := e.Vertex(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), v)
			})
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(queryCmd)
	queryCmd.PersistentFlags().StringVarP(&inputPath, "input", "i", "-", "request JSON file, - for stdin")
	queryCmd.AddCommand(regulationCmd)
	queryCmd.AddCommand(deepCmd)
	queryCmd.AddCommand(simpleCmd)
	queryCmd.AddCommand(vertexCmd)
}

// withEngine loads the configuration, connects and runs fn. The engine is closed
// when fn returns.
func withEngine(cmd *cobra.Command, reg prometheus.Registerer, fn func(context.Context, *neopaths.Engine, *config.Config, *zap.Logger) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []neopaths.Option{
		neopaths.WithLogger(logger),
		neopaths.WithRetryPolicy(cfg.Retry.Policy()),
		neopaths.WithEdgePrefix(cfg.Search.EdgePrefix),
	}
	if reg != nil {
		opts = append(opts, neopaths.WithMetrics(neopaths.NewMetrics(reg)))
	}

	ep := cfg.Neptune.Endpoint()
	logger.Info("connecting to graph", zap.String("url", ep.URL()))
	engine, err := neopaths.Connect(ctx, neopaths.Dial(ep), opts...)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", ep.URL(), err)
	}
	defer func() {
		if err := engine.Close(context.Background()); err != nil {
			logger.Warn("closing graph session", zap.Error(err))
		}
	}()

	return fn(ctx, engine, cfg, logger)
}

func runServe(cmd *cobra.Command, _ []string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return withEngine(cmd, reg, func(ctx context.Context, e *neopaths.Engine, cfg *config.Config, logger *zap.Logger) error {
		router := server.NewRouter(e, server.Options{Logger: logger, Registry: reg})
		return server.Serve(ctx, cfg.Server.Listen, router, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, logger)
	})
}

func runPing(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, nil, func(ctx context.Context, e *neopaths.Engine, _ *config.Config, _ *zap.Logger) error {
		if err := e.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	})
}

type queryFunc func(ctx context.Context, e *neopaths.Engine, body []byte) (any, error)

func runQuery(q queryFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		body, err := readInput(cmd.InOrStdin(), inputPath)
		if err != nil {
			return err
		}
		return withEngine(cmd, nil, func(ctx context.Context, e *neopaths.Engine, _ *config.Config, _ *zap.Logger) error {
			out, err := q(ctx, e, body)
			if err != nil {
				return fmt.Errorf("%s", neopaths.UserMessage(err))
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	}
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", neopaths.ErrInvalidRequest, err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
