package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/hijabist/internal/config"
	"github.com/kozaktomas/hijabist/internal/media"
	"github.com/kozaktomas/hijabist/internal/metrics"
	"github.com/kozaktomas/hijabist/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Hijabist web server.
The web server provides the JSON and SSE API behind the analysis page:
uploads and camera capture, analysis progress, results, saving and sharing.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session cookies (defaults to random)")
}

// resolveServeHostPort applies flags that were set explicitly over the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
	if secret := mustGetString(cmd, "session-secret"); secret != "" {
		cfg.Web.SessionSecret = secret
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := newBackendClient(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Using %s storage\n", cfg.Storage.Driver)
	st, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if st.sessions != nil {
		fmt.Printf("Session persistence enabled (PostgreSQL)\n")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := web.Deps{
		Predictor:   client,
		Auth:        client,
		Profiles:    client,
		Analyses:    st.analyses,
		SessionRepo: st.sessions,
		Metrics:     metrics.NewCollector(reg),
		Gatherer:    reg,
	}
	if cfg.Camera.SnapshotURL != "" {
		deps.Camera = media.NewHTTPCamera(cfg.Camera.SnapshotURL)
		fmt.Printf("Camera enabled (%s)\n", cfg.Camera.SnapshotURL)
	}

	server := web.NewServer(cfg, deps)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Hijabist API on http://%s:%d (backend %s)\n", cfg.Web.Host, cfg.Web.Port, client.BaseURL())
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
