package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wheresmyjobat/wheresmyjobat/internal/monitor"
	"github.com/wheresmyjobat/wheresmyjobat/internal/server"
	"github.com/wheresmyjobat/wheresmyjobat/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tracker server",
		Long: `Start the HTTP server and, once a mailbox is connected, the background
monitor that watches for new job application emails.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (default 127.0.0.1:5000)")
	cmd.Flags().Duration("check-interval", 0, "base mailbox polling interval")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("monitor.check_interval", cmd.Flags().Lookup("check-interval"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	db, err := openStorage()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	mbox, err := createMailbox()
	if err != nil {
		return fmt.Errorf("failed to configure mailbox: %w", err)
	}

	classifier, err := createClassifier()
	if err != nil {
		return fmt.Errorf("failed to configure classifier: %w", err)
	}
	if !classifier.Available() {
		slog.Warn("No LLM API key configured; emails will not be classified")
	}

	st := store.New(db)
	hub := server.NewHub()
	mon := monitor.New(monitor.Config{
		BaseInterval:        viper.GetDuration("monitor.check_interval"),
		BatchSize:           viper.GetInt64("monitor.batch_size"),
		ConfidenceThreshold: viper.GetInt("monitor.confidence_threshold"),
	}, mbox, classifier, st, hub)

	srv := server.New(server.Config{Addr: serverAddr()}, st, db, mbox, classifier, mon, hub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		mon.Stop()
		return err
	case <-ctx.Done():
	}

	mon.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return <-errCh
}
