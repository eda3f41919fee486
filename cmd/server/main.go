// Command main is the entry point for the Rent On Map API server.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentonmap/internal/bootstrap"
	"rentonmap/internal/config"
	"rentonmap/internal/observability"
	"rentonmap/internal/server"

	"github.com/joho/godotenv"
)

// @title Rent On Map API
// @version 1.0
// @description Map-based rental listings with search, promotion, saved listings and owner chat.
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@rentonmap.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8375
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	seedDemo := flag.Bool("seed", false, "Seed demo data into an empty development database")
	flag.Parse()

	_ = godotenv.Load() // load .env if present

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), time.Minute)
	_, _, err = bootstrap.InitRuntime(bootCtx, cfg, bootstrap.Options{ApplySchema: true, SeedDemoData: *seedDemo})
	cancelBoot()
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(context.Background(), observability.TracingConfig{
		ServiceName:    "rentonmap-api",
		ServiceVersion: version,
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("Trace flush error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
