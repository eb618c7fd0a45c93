package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xhad/carescope/internal/logger"
	"github.com/xhad/carescope/server"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve queries over a websocket",
	Long: `Starts the websocket server on /ws with /health and /metrics alongside.
With --watch the corpus file is re-read on change and the index is swapped
without interrupting queries in flight.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Rebuild the index when the corpus file changes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.SetTimestamps(true)
	svc, err := setup(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	ws := server.NewWSServer(svc, server.Config{
		Addr:         addr,
		Streaming:    cfg.UI.Streaming,
		QueryTimeout: cfg.Pipeline.GenerationTimeout + cfg.Embedding.Timeout,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ws.ListenAndServe(gctx) })
	if serveWatch || cfg.Corpus.Watch {
		g.Go(func() error { return svc.Watch(gctx, cfg.Corpus.Path, 500*time.Millisecond) })
	}
	return g.Wait()
}
