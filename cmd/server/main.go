package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"gigachat-relay/internal/config"
	"gigachat-relay/internal/database"
	"gigachat-relay/internal/handlers"
	"gigachat-relay/internal/middleware"
	"gigachat-relay/internal/router"
	"gigachat-relay/internal/services"
)

var envFile = pflag.StringP("env-file", "e", ".env", "dotenv file with configuration overrides")

func main() {
	pflag.Parse()
	log.Println("🚀 Starting GigaChat Relay...")

	if err := run(); err != nil {
		log.Fatalf("✗ %v", err)
	}
	log.Println("Server stopped")
}

// run owns every resource opened at startup so that deferred Close calls
// execute before the process exits.
func run() error {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load(*envFile)
	log.Printf("✓ Environment variables loaded (env %s)", cfg.Env)
	if !cfg.AuthConfigured() {
		log.Println("⚠ API_USER or API_PASSWORD is empty: every request will be rejected")
	}

	// ──── Step 2: Initialize Upstream Client ────
	var upstream services.Completer
	upstreamTimeout := time.Duration(cfg.UpstreamTimeoutSec) * time.Second

	switch cfg.Provider {
	case config.ProviderGemini:
		geminiService, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return fmt.Errorf("Gemini client initialization failed: %w", err)
		}
		defer geminiService.Close()
		upstream = geminiService
		log.Printf("✓ Gemini client initialized (model %s)", cfg.GeminiModel)

	default:
		var tokens services.TokenStore = services.NewMemoryTokenStore()
		if cfg.RedisURL != "" {
			redisClient, err := database.NewRedisClient(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("Redis connection failed: %w", err)
			}
			defer redisClient.Close()
			tokens = services.NewRedisTokenStore(redisClient, cfg.GigaChatScope)
			log.Println("✓ Redis connected (shared access token cache)")
		}

		if !cfg.GigaChatVerifySSL {
			log.Println("⚠ GigaChat TLS certificate verification is disabled")
		}
		upstream = services.NewGigaChatService(services.GigaChatOptions{
			Credentials:    cfg.GigaChatCredentials,
			Model:          cfg.GigaChatModel,
			BaseURL:        cfg.GigaChatBaseURL,
			AuthURL:        cfg.GigaChatAuthURL,
			Scope:          cfg.GigaChatScope,
			VerifySSL:      cfg.GigaChatVerifySSL,
			ProfanityCheck: cfg.GigaChatProfanityCheck,
			Timeout:        upstreamTimeout,
			ConcurrentReqs: cfg.GigaChatConcurrentReqs,
		}, tokens)
		log.Printf("✓ GigaChat client initialized (model %s)", cfg.GigaChatModel)
	}

	// ──── Step 3: Initialize Services & Handlers ────
	basicAuth := middleware.NewBasicAuth(cfg.APIUser, cfg.APIPassword, cfg.AuthRealm)
	relayService := services.NewRelayService(upstream, upstreamTimeout)
	relayHandler := handlers.NewRelayHandler(relayService)

	// ──── Step 4: Start HTTP Server ────
	r := router.New(basicAuth, relayHandler, cfg.CORSAllowedOrigins, cfg.StaticDir)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: upstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("✓ GigaChat Relay ready on http://localhost:%s", cfg.Port)
		log.Printf("  Predict: POST http://localhost:%s/predict", cfg.Port)
		serverErr <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-sigChan:
	}

	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
		return server.Close()
	}
	return nil
}
