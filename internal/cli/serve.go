package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lazypower/substream/internal/engine"
	"github.com/lazypower/substream/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, path, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	eng, err := engine.New(cfg.Clustering)
	if err != nil {
		return err
	}
	if err := eng.Attach(db, "http"); err != nil {
		return err
	}
	defer eng.Stop()
	if cfg.Snapshots.Enabled {
		eng.StartSnapshotTimer(time.Duration(cfg.Snapshots.Interval) * time.Second)
	}

	srv := server.New(db, eng, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "substream serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", path)
		fmt.Fprintf(os.Stderr, "  run: %s (tspan %d ticks)\n", eng.RunID, eng.Tspan())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
