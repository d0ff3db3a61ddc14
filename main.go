package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/ai"
	"github.com/bhoyee/IncidentPulse-sub000/bus"
	"github.com/bhoyee/IncidentPulse-sub000/config"
	"github.com/bhoyee/IncidentPulse-sub000/maintenance"
	"github.com/bhoyee/IncidentPulse-sub000/memory"
	"github.com/bhoyee/IncidentPulse-sub000/monitor"
	"github.com/bhoyee/IncidentPulse-sub000/redisstore"
	"github.com/bhoyee/IncidentPulse-sub000/service"
	"github.com/bhoyee/IncidentPulse-sub000/status"
	"github.com/bhoyee/IncidentPulse-sub000/storage"
)

// engineStore is everything the engine reads and writes outside the intake buffers.
// Both memory.Store and storage.Repository satisfy it.
type engineStore interface {
	monitor.IncidentStore
	monitor.IncidentUpdateStore
	monitor.ServiceStore
	monitor.OrganizationStore
	monitor.IdentityResolver
	monitor.SettingsStore
	status.IncidentReader
	status.UpdateReader
	status.ServiceLister
	status.RecordStore
	maintenance.Store
	service.SettingsWriter
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Command line flags
	apiKey := flag.String("api-key", cfg.OpenAIAPIKey, "OpenAI API key (or set OPENAI_API_KEY env var)")
	useAI := flag.Bool("use-ai", cfg.AIProvider != "none", "Summarize auto-created incidents with an AI provider")
	backend := flag.String("backend", cfg.StoreBackend, "Store backend: memory or postgres")
	flag.Parse()
	cfg.OpenAIAPIKey = *apiKey
	cfg.StoreBackend = *backend
	if !*useAI {
		cfg.AIProvider = "none"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	printBanner()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Println("[SYSTEM] Initializing signal engine...")

	checks := make(map[string]service.Pinger)

	store, db, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer closeStore()
	if db != nil {
		checks["postgres"] = db
	}

	plans, err := config.LoadPlans(cfg.PlanLimitsFile)
	if err != nil {
		log.Fatalf("Failed to load plan limits: %v", err)
	}

	settings := monitor.NewSettingsCache(store, cfg.TriggerDefaults, cfg.SettingsCacheTTL)
	statusCache := status.NewCache(store, store, store, store, cfg.StatusStale)

	evaluator := &monitor.Evaluator{
		Buffer:    monitor.NewLogBuffer(),
		Cooldown:  monitor.NewMemoryCooldown(),
		Settings:  settings,
		Incidents: store,
		Updates:   store,
		Services:  store,
		Orgs:      store,
		Plans:     plans,
		Identity:  store,
		Retention: cfg.BufferTTL,
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		checks["redis"] = rdb
		evaluator.Buffer = rdb.Window()
		evaluator.Cooldown = rdb.Cooldown()
		log.Println("[SYSTEM] Intake buffers and cooldowns are shared through Redis")
	} else {
		log.Println("[SYSTEM] Intake buffers are process-local and reset on restart")
	}

	summarizer, closeSummarizer := openSummarizer(ctx, cfg)
	defer closeSummarizer()
	if summarizer != nil {
		evaluator.Summarizer = summarizer
	}

	var (
		maintenanceNotifier maintenance.Notifier
		settingsPublisher   service.SettingsPublisher
	)
	if cfg.NATSURL != "" {
		conn, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		publisher := bus.NewPublisher(conn)
		defer publisher.Close()

		subscriber := bus.NewSubscriber(conn, settings)
		if err := subscriber.Start(); err != nil {
			log.Fatalf("Failed to subscribe to settings updates: %v", err)
		}
		defer subscriber.Stop()

		evaluator.Notifier = publisher
		maintenanceNotifier = publisher
		settingsPublisher = publisher
	}

	transitioner := maintenance.NewTransitioner(store, maintenanceNotifier)
	maintenanceService := maintenance.NewService(store, transitioner, statusCache, maintenanceNotifier)

	var sweeper *maintenance.Sweeper
	if cfg.MaintenanceSweep > 0 {
		sweeper = maintenance.NewSweeper(transitioner, statusCache, cfg.MaintenanceSweep)
		sweeper.Start(ctx)
	}

	server := service.NewServer(cfg.Port, service.Deps{
		Evaluator:   evaluator,
		Status:      statusCache,
		Maintenance: maintenanceService,
		Settings:    settings,
		Writer:      store,
		Publisher:   settingsPublisher,
		Checks:      checks,
	})
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("[SYSTEM] System ready")
	log.Printf("[SYSTEM] Listening at: http://localhost:%s\n", cfg.Port)
	log.Println(strings.Repeat("=", 70))

	<-sigChan
	log.Println("[SYSTEM] Shutting down...")

	if sweeper != nil {
		sweeper.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Printf("[SYSTEM] Server shutdown error: %v\n", err)
	}
	cancel()

	if mem, ok := store.(*memory.Store); ok {
		log.Println("[SYSTEM] Printing final summary...")
		mem.PrintSummary()
	}

	log.Println("[SYSTEM] Goodbye!")
}

// openStore returns the configured backend, the database pool behind it when
// there is one, and a func that releases it
func openStore(ctx context.Context, cfg *config.Config) (engineStore, *storage.Store, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		db, err := storage.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return storage.NewRepository(db, cfg.SystemUserEmail), db, db.Close, nil
	default:
		mem := memory.NewStore(cfg.MemoryFile)
		mem.SetSystemUserEmail(cfg.SystemUserEmail)
		return mem, nil, func() {}, nil
	}
}

// openSummarizer picks the AI provider. A nil summarizer means summaries are skipped.
func openSummarizer(ctx context.Context, cfg *config.Config) (monitor.Summarizer, func()) {
	noop := func() {}

	switch cfg.AIProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Println("[AI] No OpenAI API key provided, AI summaries disabled")
			log.Println("[AI] To use OpenAI: set OPENAI_API_KEY env var or use -api-key flag")
			return nil, noop
		}
		log.Printf("[AI] Summarizing with OpenAI model %s\n", cfg.OpenAIModel)
		return ai.NewAnalyzer(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.AITimeout), noop
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			log.Println("[AI] No Gemini API key provided, AI summaries disabled")
			return nil, noop
		}
		gemini, err := ai.NewGeminiSummarizer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.AITimeout)
		if err != nil {
			log.Printf("[AI] Gemini unavailable, AI summaries disabled: %v\n", err)
			return nil, noop
		}
		log.Printf("[AI] Summarizing with Gemini model %s\n", cfg.GeminiModel)
		return gemini, func() { _ = gemini.Close() }
	default:
		log.Println("[AI] AI summaries disabled")
		return nil, noop
	}
}

func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                                                                   ║
║        IncidentPulse Signal Engine                                ║
║                                                                   ║
║        Log Intake • Auto-Incidents • Status • Maintenance         ║
║                                                                   ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
}
