package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/itemid"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/notify"
	"github.com/cuemby/burrow/pkg/shm"
	"github.com/cuemby/burrow/pkg/sink"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broker with configured watches",
	Long: `Run the broker as a daemon. Watches listed in the configuration file
are registered at startup and every delivered change is logged. When
metrics.addr is set, /metrics, /health, /ready and /live are served.`,
	Example: `  burrow serve -c /etc/burrow/burrow.yaml
  burrow serve --metrics-addr 127.0.0.1:9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Path to configuration file")
	serveCmd.Flags().String("metrics-addr", "", "Listen address for metrics and health (overrides config)")
	serveCmd.Flags().Bool("trace", false, "Log every broker activity event")
}

func runServe(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	trace, _ := cmd.Flags().GetBool("trace")

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = cmd.Flags().GetString("metrics-addr")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Init(cfg.LogSettings())
	logger := log.WithComponent("cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := events.NewBroker()
	feed.Start()
	defer feed.Stop()
	if trace {
		go traceActivity(ctx, feed)
	}

	resolver, err := itemid.NewFSResolver("")
	if err != nil {
		return err
	}
	arena := shm.NewArena(cfg.Arena.MaxBytes)
	sinks := sink.NewTable()
	srv := notify.NewServer(cfg.BrokerSettings(), arena, sinks, resolver, notify.WithFeed(feed))
	srv.Start()
	metrics.RegisterProbe("broker", func() error {
		select {
		case <-srv.Done():
			return errors.New("request loop exited")
		default:
			return nil
		}
	})

	errCh := make(chan error, 1)
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
		logger.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics endpoint listening")
	}

	c := client.NewClient(srv, arena, sinks, srv.PID())
	if err := registerWatches(ctx, c, resolver, cfg.Watches); err != nil {
		metrics.RegisterComponent("watch", false, err.Error())
		srv.Stop()
		return err
	}
	want := len(cfg.Watches)
	metrics.RegisterProbe("watch", func() error {
		if n := srv.Watches().Active(); n < want {
			return fmt.Errorf("%d of %d watchers running", n, want)
		}
		return nil
	})

	logger.Info().Uint32("pid", uint32(srv.PID())).Int("watches", len(cfg.Watches)).Msg("broker running")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("shutting down")
	case <-srv.Done():
		logger.Warn().Msg("broker loop exited")
	}

	metrics.RegisterComponent("broker", false, "shutting down")
	metrics.UnregisterComponent("watch")
	if err := c.Close(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("failed to close client")
	}
	srv.Stop()
	srv.Watches().Wait()
	logger.Info().Msg("shutdown complete")
	return nil
}

func registerWatches(ctx context.Context, c *client.Client, resolver itemid.Resolver, specs []config.WatchSpec) error {
	logger := log.WithComponent("cli")

	for _, spec := range specs {
		mask, err := spec.Mask()
		if err != nil {
			return err
		}
		scope, err := resolver.ItemFor(spec.Path)
		if err != nil {
			return err
		}

		sources := types.SourceInterrupt | types.SourceShell
		if spec.Recursive {
			sources |= types.SourceRecursiveInterrupt
		}
		path := spec.Path
		id, err := c.Register(ctx, client.Registration{
			Sink: sink.Func(func(_ context.Context, n sink.Notification) error {
				t, err := c.Lock(n)
				if err != nil {
					return err
				}
				logger.Info().
					Str("watch", path).
					Str("trace_id", t.TraceID).
					Str("events", (t.Events &^ types.EventInterrupt).String()).
					Str("path1", t.Path1.String()).
					Str("path2", t.Path2.String()).
					Msg("change")
				return nil
			}),
			Sources:   sources,
			Events:    mask,
			Scope:     scope,
			Recursive: spec.Recursive,
		})
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", spec.Path, err)
		}
		sublog := log.WithSubscriptionID(logger, id)
		sublog.Info().Str("path", spec.Path).Bool("recursive", spec.Recursive).Msg("watch registered")
	}
	return nil
}

func traceActivity(ctx context.Context, feed *events.Broker) {
	logger := log.WithComponent("feed")
	sub := feed.Subscribe()
	defer feed.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			e := logger.Info().
				Str("type", string(ev.Type)).
				Uint32("subscription_id", ev.SubscriptionID).
				Uint32("pid", ev.PID).
				Str("message", ev.Message)
			for k, v := range ev.Metadata {
				e = e.Str(k, v)
			}
			e.Msg("activity")
		}
	}
}
