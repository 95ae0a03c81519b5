package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	gcstorage "cloud.google.com/go/storage"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kmorrill/receipt-budgeter/internal/attribution"
	"github.com/kmorrill/receipt-budgeter/internal/auth"
	"github.com/kmorrill/receipt-budgeter/internal/budget"
	"github.com/kmorrill/receipt-budgeter/internal/config"
	"github.com/kmorrill/receipt-budgeter/internal/extraction"
	"github.com/kmorrill/receipt-budgeter/internal/search"
	"github.com/kmorrill/receipt-budgeter/internal/service"
	"github.com/kmorrill/receipt-budgeter/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var receipts store.Store
	if cfg.UseMemoryStore {
		log.Println("Using in-memory receipt store for local development")
		memStore := store.NewMemoryStore(cfg.MemoryReceiptTTL)
		defer memStore.Stop()
		receipts = memStore
	} else {
		if cfg.GoogleCloudProject == "" {
			log.Fatal("GOOGLE_CLOUD_PROJECT is required when not using the memory store")
		}
		firestoreClient, err := firestore.NewClient(ctx, cfg.GoogleCloudProject)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()
		receipts = store.NewFirestoreStore(firestoreClient)
	}

	var geminiOpts []extraction.GeminiOption
	if cfg.GeminiModel != "" {
		geminiOpts = append(geminiOpts, extraction.WithModel(cfg.GeminiModel))
	}
	gemini := extraction.NewGeminiClient(cfg.GeminiAPIKey, geminiOpts...)
	if !gemini.Available() {
		log.Println("⚠️  GEMINI_API_KEY not set - receipt analysis will fail until configured")
	}
	analyzer := extraction.NewAnalyzer(gemini)

	engine := attribution.NewEngine(
		attribution.WithOracle(extraction.NewGeminiOracle(gemini)),
	)

	budgetClient := budget.NewClient(
		cfg.ActualServerURL,
		cfg.ActualPassword,
		budget.WithTestData(cfg.TestDataEnabled),
	)
	if cfg.TestDataEnabled {
		log.Println("Using test budget data - no ledger server required")
	}

	serviceOpts := []service.ServiceOption{service.WithTestData(cfg.TestDataEnabled)}
	if cfg.ReceiptBucket != "" {
		storageClient, err := gcstorage.NewClient(ctx)
		if err != nil {
			log.Fatalf("Failed to create Cloud Storage client: %v", err)
		}
		defer storageClient.Close()
		serviceOpts = append(serviceOpts, service.WithArchiver(
			service.NewGCSArchiver(storageClient, cfg.ReceiptBucket),
		))
	}

	if cfg.AlgoliaAppID != "" && cfg.AlgoliaAPIKey != "" {
		searcher, err := search.NewClient(search.Config{
			AppID:     cfg.AlgoliaAppID,
			APIKey:    cfg.AlgoliaAPIKey,
			IndexName: cfg.AlgoliaIndexName,
		})
		if err != nil {
			log.Fatalf("Failed to create Algolia client: %v", err)
		}
		serviceOpts = append(serviceOpts, service.WithSearch(searcher))
	}

	svc := service.NewService(analyzer, budgetClient, receipts, engine, serviceOpts...)

	var middlewares []func(http.Handler) http.Handler
	if cfg.APITokenHash != "" {
		middlewares = append(middlewares, auth.Middleware(cfg.APITokenHash))
	} else {
		log.Println("⚠️  API_TOKEN_HASH not set - mutating endpoints are unauthenticated")
	}

	c := cors.New(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:1234", // Local frontend
			"http://127.0.0.1:1234", // Alternative local
			"https://*.vercel.app",  // Vercel preview deployments
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"User-Agent",
		},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(c.Handler(svc.Router(middlewares...)), &http2.Server{}),
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
