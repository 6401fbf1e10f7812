package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/itemid"
	"github.com/cuemby/burrow/pkg/notify"
	"github.com/cuemby/burrow/pkg/shm"
	"github.com/cuemby/burrow/pkg/sink"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch DIR...",
	Short: "Watch directories and print every change",
	Long: `Start an in-process broker, subscribe to each directory and print
every delivered change until interrupted.

Non-recursive watches report any change inside a directory against the
directory itself, with update-dir added to the kind of change.`,
	Example: `  # Watch a tree
  burrow watch -r ./src

  # Only creations and deletions
  burrow watch --events create,delete,mkdir,rmdir /tmp`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolP("recursive", "r", false, "Watch whole subtrees")
	watchCmd.Flags().StringSlice("events", []string{"all"}, "Event kinds to report")
	watchCmd.Flags().Duration("delivery-timeout", 2*time.Second, "Timeout for a single delivery")
}

func runWatch(cmd *cobra.Command, args []string) error {
	recursive, _ := cmd.Flags().GetBool("recursive")
	names, _ := cmd.Flags().GetStringSlice("events")
	timeout, _ := cmd.Flags().GetDuration("delivery-timeout")

	mask, err := types.ParseEventMask(names)
	if err != nil {
		return err
	}

	resolver, err := itemid.NewFSResolver("")
	if err != nil {
		return err
	}

	cfg := notify.DefaultConfig()
	cfg.DeliveryTimeout = timeout
	arena := shm.NewArena(0)
	sinks := sink.NewTable()
	srv := notify.NewServer(cfg, arena, sinks, resolver)
	srv.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.NewClient(srv, arena, sinks, srv.PID())
	out := &printer{w: cmd.OutOrStdout(), gw: arena}

	sources := types.SourceInterrupt
	if recursive {
		sources |= types.SourceRecursiveInterrupt
	}
	for _, dir := range args {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", dir, err)
		}
		scope, err := resolver.ItemFor(abs)
		if err != nil {
			return err
		}
		if _, err := c.Register(ctx, client.Registration{
			Sink:      out,
			Sources:   sources,
			Events:    mask,
			Scope:     scope,
			Recursive: recursive,
		}); err != nil {
			srv.Stop()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Watching %s\n", abs)
	}

	<-ctx.Done()
	fmt.Fprintln(cmd.ErrOrStderr(), "\nShutting down...")

	out.close()
	if err := c.Close(context.Background()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}
	srv.Stop()
	srv.Watches().Wait()
	return nil
}

// printer is a sink that writes one line per delivered change.
type printer struct {
	w  io.Writer
	gw shm.Gateway

	mu     sync.Mutex
	closed bool
}

func (p *printer) Deliver(_ context.Context, n sink.Notification) error {
	t, err := client.Lock(p.gw, n)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return sink.ErrClosed
	}

	line := []string{t.Time.Format(time.RFC3339), (t.Events &^ types.EventInterrupt).String(), t.Path1.String()}
	if t.Path2 != nil {
		line = append(line, "->", t.Path2.String())
	}
	_, err = fmt.Fprintln(p.w, strings.Join(line, " "))
	return err
}

func (p *printer) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
