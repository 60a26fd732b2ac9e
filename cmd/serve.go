package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tilegrid/internal/server"
	"github.com/kiesman99/tilegrid/internal/source"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the tiling API",
	Long: `Start an HTTP server that provides a REST API for grid planning and
tile export.

Endpoints:
  GET  /api/v1/health   service status
  GET  /api/v1/grid     plan a grid for given image dimensions
  POST /api/v1/tiles    split the posted image, answer with a ZIP of PNG tiles

Examples:
  # Start server on default port 8080
  tilegrid serve

  # Start server on custom port
  tilegrid serve --port 3000

  # Accept uploads up to 256 MiB and 100 megapixels, at most one export per second
  tilegrid serve --bind 0.0.0.0 --max-upload 268435456 --max-pixels 100000000 --rate 1`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 60*time.Second, "request timeout")
	serveCmd.Flags().Int64("max-upload", server.DefaultMaxUpload, "largest accepted image in bytes")
	serveCmd.Flags().Int64("max-pixels", source.DefaultMaxPixels, "largest accepted image in pixels")
	serveCmd.Flags().Float64("rate", 0, "tile exports per second, 0 for unlimited")
	serveCmd.Flags().Int("burst", 4, "tile exports allowed in a burst when --rate is set")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.max-upload", serveCmd.Flags().Lookup("max-upload"))
	viper.BindPFlag("server.max-pixels", serveCmd.Flags().Lookup("max-pixels"))
	viper.BindPFlag("server.rate", serveCmd.Flags().Lookup("rate"))
	viper.BindPFlag("server.burst", serveCmd.Flags().Lookup("burst"))
}

func runServe(cmd *cobra.Command, args []string) error {
	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	timeout := viper.GetDuration("server.timeout")

	addr := fmt.Sprintf("%s:%d", bind, port)

	// Create server implementation
	apiServer := server.NewServer(Version, viper.GetInt64("server.max-upload"))
	apiServer.SetMaxPixels(viper.GetInt64("server.max-pixels"))
	apiServer.SetRateLimit(viper.GetFloat64("server.rate"), viper.GetInt("server.burst"))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.NewRouter(apiServer, timeout),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		fmt.Fprintf(cmd.ErrOrStderr(), "\nShutting down server...\n")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "Starting tilegrid server on %s\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Health check: http://%s/api/v1/health\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Grid endpoint: http://%s/api/v1/grid\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Tiles endpoint: http://%s/api/v1/tiles\n", addr)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %v", err)
	}

	return nil
}
