package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"keywordhub/internal/cache"
	"keywordhub/internal/config"
	"keywordhub/internal/db"
	"keywordhub/internal/delivery"
	"keywordhub/internal/email"
	"keywordhub/internal/jobs"
	"keywordhub/internal/metrics"
	"keywordhub/internal/models"
	"keywordhub/internal/promotion"
	"keywordhub/internal/redundancy"
	"keywordhub/internal/resolver"
	"keywordhub/internal/rules"
	"keywordhub/internal/server"
	"keywordhub/internal/similarity"
	"keywordhub/internal/store"
	"keywordhub/internal/store/memstore"
	"keywordhub/internal/trends"
	"keywordhub/internal/trigger"
	"keywordhub/internal/validation"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	if cfg.IsDev() {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
	if cfg.AdminToken == "" {
		log.Println("Warning: ADMIN_TOKEN is not set; the admin API rejects every request")
	}

	// Load YAML tuning and seed data
	tuning, err := config.LoadYAMLConfig()
	if err != nil {
		log.Fatalf("Failed to load config file: %v", err)
	}

	// Initialize storage
	var st store.Store
	deps := server.Dependencies{RegexPrefix: tuning.Detection.RegexPrefix}

	switch cfg.Storage {
	case "memory":
		log.Println("Using in-memory storage; data is lost on exit")
		st = memstore.New()
	default:
		pg, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()

		if err := pg.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Migrations completed successfully")
		st = pg
		deps.DB = pg
	}

	loc := cfg.Location()

	// Email
	emailService := email.NewService(cfg)
	notifier := email.NewNotifier(cfg, emailService)
	if emailService.IsEnabled() {
		log.Printf("Email notifications enabled (SMTP: %s:%d)", cfg.SMTPHost, cfg.SMTPPort)
	}

	// Engine components
	keywordCache := cache.New[[]models.Keyword](cfg.CacheSize, cfg.CacheTTL)
	res := resolver.New(st, keywordCache)
	promo := promotion.New(st, res, notifier, tuning.Promotion.DefaultThreshold)
	detector := redundancy.New(st, res, redundancy.Options{
		Metric: similarity.Metric{
			EditWeight: tuning.Redundancy.EditWeight,
			NGram:      tuning.Redundancy.NGram,
		},
		HighThreshold:   tuning.Redundancy.HighThreshold,
		ReviewThreshold: tuning.Redundancy.ReviewThreshold,
	})
	dispatcher := delivery.New(delivery.Options{
		GatewayURL: cfg.MessageGatewayURL,
		SMSURL:     cfg.SMSGatewayURL,
		SMSRate:    cfg.SMSRatePerSecond,
	}, emailService)
	engine := rules.New(st, dispatcher, rules.Options{
		ActionTimeout: cfg.ActionTimeout,
		Location:      loc,
		CacheTTL:      cfg.CacheTTL,
	})
	pipeline := trigger.New(res, st, engine, promo, trigger.Options{
		FuzzyThreshold:  tuning.Detection.FuzzyThreshold,
		RegexPrefix:     tuning.Detection.RegexPrefix,
		RegexConfidence: tuning.Detection.RegexConfidence,
		CacheSize:       cfg.CacheSize,
		CacheTTL:        cfg.CacheTTL,
		Location:        loc,
	})
	promo.SetRuleCache(pipeline)
	detector.SetRuleCache(pipeline)
	analyzer := trends.New(st, trends.Options{
		ForecastHistoryDays: tuning.Trends.ForecastHistoryDays,
		MinForecastPoints:   tuning.Trends.MinForecastPoints,
		Location:            loc,
	})

	metrics.Init(st)

	if err := seedKeywords(ctx, st, tuning.SeedKeywords, tuning.Detection.RegexPrefix); err != nil {
		log.Fatalf("Failed to seed keywords: %v", err)
	}
	res.Invalidate(nil)

	// Background jobs
	if cfg.RedundancyScanInterval > 0 {
		go jobs.NewRedundancyScanner(detector, cfg.RedundancyScanInterval).Start(ctx)
	}
	if cfg.CleanupInterval > 0 && cfg.RetentionDays > 0 {
		go jobs.NewCleanup(st, cfg.CleanupInterval, cfg.RetentionDays).Start(ctx)
	}

	// HTTP server
	deps.Store = st
	deps.Resolver = res
	deps.Promotion = promo
	deps.Redundancy = detector
	deps.Rules = engine
	deps.Triggers = pipeline
	deps.Trends = analyzer

	srv := server.New(cfg)
	srv.RegisterRoutes(deps)

	go func() {
		if err := srv.Start(); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("Server started on %s", cfg.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancel()
	if err := srv.Shutdown(); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Let in-flight usage recording and emails finish
	pipeline.Wait()
	emailService.Wait()
	log.Println("Server exited")
}

// seedKeywords creates the configured server keywords that do not exist yet.
func seedKeywords(ctx context.Context, st store.KeywordStore, seeds []config.SeedKeyword, regexPrefix string) error {
	seeded := 0
	for _, seed := range seeds {
		text := validation.NormalizeKeyword(seed.Text)
		if ok, msg := validation.ValidateKeyword(text, regexPrefix); !ok {
			log.Printf("Skipping seed keyword %q: %s", seed.Text, msg)
			continue
		}
		priority, _ := models.ParsePriority(seed.Priority)
		kind := models.KindGlobal
		if seed.Area != "" {
			kind = models.KindLocal
		}

		kw := &models.Keyword{
			Text:        text,
			Description: seed.Description,
			Kind:        kind,
			Priority:    priority,
			Area:        models.AreaPtr(seed.Area),
			Active:      true,
			Source:      models.SourceServer,
			Weight:      models.WeightServer,
		}
		if _, err := st.FindOrCreateKeyword(ctx, kw); err != nil {
			return err
		}
		seeded++
	}
	if seeded > 0 {
		log.Printf("Ensured %d seed keywords", seeded)
	}
	return nil
}
