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

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/infocapsule/digest/internal/api"
	"github.com/infocapsule/digest/internal/config"
	"github.com/infocapsule/digest/internal/digest"
	"github.com/infocapsule/digest/internal/feed"
	"github.com/infocapsule/digest/internal/feedproxy"
	"github.com/infocapsule/digest/internal/mailer"
	"github.com/infocapsule/digest/internal/pkg/distlock"
	"github.com/infocapsule/digest/internal/store"
	"github.com/infocapsule/digest/internal/summarize"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	st, err := store.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()
	log.Println("[server] Database connected")

	// Optional Redis for distributed slot locking
	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("[server] Redis unavailable, slot locks fall back to advisory locks: %v", err)
			redisClient = nil
		} else {
			log.Println("[server] Redis connected")
		}
	}

	// Feed proxy
	proxy := feedproxy.NewClient(feedproxy.Config{
		APIKey:  cfg.FetchRSS.APIKey,
		BaseURL: cfg.FetchRSS.BaseURL,
		Timeout: cfg.FetchRSS.Timeout(),
	})

	// Summarizer
	var summarizer summarize.Summarizer
	switch cfg.Summarizer.Provider {
	case "bedrock":
		summarizer, err = summarize.NewBedrockSummarizer(ctx, cfg.Summarizer.Bedrock.ModelID, cfg.Summarizer.Bedrock.Region)
		if err != nil {
			log.Fatalf("Failed to initialize Bedrock summarizer: %v", err)
		}
		log.Printf("[server] Summarizer: bedrock (%s)", cfg.Summarizer.Bedrock.ModelID)
	default:
		summarizer = summarize.NewOpenAISummarizer(summarize.OpenAIConfig{
			APIKey:  cfg.Summarizer.OpenAI.APIKey,
			Model:   cfg.Summarizer.OpenAI.Model,
			Timeout: cfg.Summarizer.OpenAI.Timeout(),
		})
		log.Printf("[server] Summarizer: openai (%s)", cfg.Summarizer.OpenAI.Model)
	}

	// Mailer
	sesMailer, err := mailer.NewSESMailer(ctx, mailer.Config{
		Region:    cfg.SES.Region,
		AccessKey: cfg.SES.AccessKey,
		SecretKey: cfg.SES.SecretKey,
		FromName:  cfg.SES.FromName,
		FromEmail: cfg.SES.FromEmail,
	})
	if err != nil {
		log.Fatalf("Failed to initialize SES mailer: %v", err)
	}

	// Digest pipeline
	fetcher := feed.NewFetcher(cfg.Digest.FetchTimeout())
	runner := digest.NewRunner(st, fetcher, summarizer, sesMailer, digest.Config{
		FetchTimeout:       cfg.Digest.FetchTimeout(),
		MaxConcurrentUsers: cfg.Digest.MaxConcurrentUsers,
		MaxConcurrentFeeds: cfg.Digest.MaxConcurrentFeeds,
		TestSampleSize:     cfg.Digest.TestSampleSize,
	})

	lockFactory := func(key string) distlock.DistLock {
		return distlock.NewLock(redisClient, st.DB(), key, 15*time.Minute)
	}
	scheduler := digest.NewSlotScheduler(runner, lockFactory)
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP surface
	events := mailer.NewEventHandler(st)
	server := api.NewServer(st, proxy, runner, events, nil)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("[server] Listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[server] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] HTTP shutdown error: %v", err)
	}
	log.Println("[server] Stopped")
}
