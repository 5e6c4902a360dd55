package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/washdeskhq/washdesk/internal/bootstrap"
	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/channels"
	"github.com/washdeskhq/washdesk/internal/channels/discord"
	"github.com/washdeskhq/washdesk/internal/channels/telegram"
	"github.com/washdeskhq/washdesk/internal/config"
	"github.com/washdeskhq/washdesk/internal/dialogue"
	"github.com/washdeskhq/washdesk/internal/dispatch"
	"github.com/washdeskhq/washdesk/internal/escalate"
	"github.com/washdeskhq/washdesk/internal/gateway"
	"github.com/washdeskhq/washdesk/internal/identity"
	"github.com/washdeskhq/washdesk/internal/providers"
	"github.com/washdeskhq/washdesk/internal/resolution"
	"github.com/washdeskhq/washdesk/internal/session"
	"github.com/washdeskhq/washdesk/internal/store"
	"github.com/washdeskhq/washdesk/internal/store/pg"
	"github.com/washdeskhq/washdesk/internal/store/sqlite"
	"github.com/washdeskhq/washdesk/internal/telemetry"
	"github.com/washdeskhq/washdesk/internal/ticket"
	"github.com/washdeskhq/washdesk/pkg/protocol"
)

func runGateway() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Telemetry first so the whole pipeline is traced.
	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
	} else {
		defer func() {
			flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelFlush()
			shutdownTelemetry(flushCtx)
		}()
	}

	// Stores: SQLite file in standalone mode, Postgres in managed mode.
	storeCfg := store.StoreConfig{
		SQLitePath:  cfg.Database.SQLitePath,
		PostgresDSN: cfg.Database.PostgresDSN,
		TicketFloor: cfg.Tickets.Floor,
	}
	var stores *store.Stores
	if cfg.Managed() && cfg.Database.PostgresDSN != "" {
		stores, err = pg.NewStores(storeCfg)
	} else {
		stores, err = sqlite.NewStores(storeCfg)
	}
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	// Seed starter data files on a fresh install.
	if seeded, seedErr := bootstrap.EnsureDataFiles(cfg.Identity.DirectoryPath, cfg.Resolution.CatalogPath); seedErr != nil {
		slog.Warn("data file seeding failed", "error", seedErr)
	} else if len(seeded) > 0 {
		slog.Info("seeded starter data files", "files", seeded)
	}

	// Customer directory + identity resolver.
	dir, err := identity.LoadDirectory(cfg.Identity.DirectoryPath)
	if err != nil {
		slog.Error("failed to load customer directory", "path", cfg.Identity.DirectoryPath, "error", err)
		os.Exit(1)
	}
	resolver := identity.NewResolver(dir, identity.PhoneConfig{
		CountryCode: cfg.Identity.CountryCode,
		TrunkPrefix: cfg.Identity.TrunkPrefix,
	})
	slog.Info("customer directory loaded", "customers", dir.Len())

	// Remedy catalog.
	catalog, err := resolution.LoadCatalog(cfg.Resolution.CatalogPath)
	if err != nil {
		slog.Error("failed to load remedy catalog", "path", cfg.Resolution.CatalogPath, "error", err)
		os.Exit(1)
	}
	slog.Info("remedy catalog loaded", "entries", catalog.Len())

	// AI providers are optional: without an API key the resolution chain
	// runs on keyword matching alone.
	var assistant providers.Assistant
	var completer providers.Completer
	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		oa := cfg.Providers.OpenAI
		if oa.AssistantID != "" {
			assistant = providers.NewAssistantClient(key, oa.APIBase, oa.AssistantID, cfg.PollInterval(), cfg.Providers.PollMaxAttempts)
		}
		completer = providers.NewOpenAIProvider("openai", key, oa.APIBase, oa.Model)
		slog.Info("resolution providers enabled", "assistant", oa.AssistantID != "", "model", oa.Model)
	} else {
		slog.Warn("no WASHDESK_OPENAI_API_KEY, resolution falls back to keywords only")
	}
	resEngine := resolution.NewEngine(catalog, assistant, completer, resolution.EngineConfig{
		SingleShotTimeout: cfg.SingleShotTimeout(),
	})

	// Core runtime pieces.
	msgBus := bus.NewMessageBus()
	sessions := session.NewStore(session.StoreConfig{
		MaxAge:      cfg.SessionMaxAge(),
		FragileIdle: cfg.FragileIdle(),
	})
	issuer := ticket.NewIssuer(cfg.Tickets.Prefix, stores.Tickets)
	engine := dialogue.NewEngine(resolver, issuer, dialogue.Config{
		MinProblemText: cfg.Dialogue.MinProblemText,
		MinGuestText:   cfg.Dialogue.MinGuestText,
		MaxIDAttempts:  cfg.Dialogue.MaxIDAttempts,
	})

	// Channels.
	channelMgr := channels.NewManager()
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		tg, tgErr := telegram.New(cfg.Channels.Telegram, msgBus)
		if tgErr != nil {
			slog.Error("failed to initialize telegram channel", "error", tgErr)
		} else {
			channelMgr.Register(tg)
			slog.Info("telegram channel enabled")
		}
	}
	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "" {
		dc, dcErr := discord.New(cfg.Channels.Discord, msgBus)
		if dcErr != nil {
			slog.Error("failed to initialize discord channel", "error", dcErr)
		} else {
			channelMgr.Register(dc)
			slog.Info("discord channel enabled")
		}
	}
	if len(channelMgr.Names()) == 0 {
		slog.Warn("no channels enabled, gateway serves ops API only")
	}

	dispatcher := dispatch.New(channelMgr, dispatch.NewLogMailer(cfg.Mail), stores.Ledger, msgBus)

	rt := &gatewayRuntime{
		cfg:        cfg,
		sessions:   sessions,
		engine:     engine,
		resolution: resEngine,
		dispatcher: dispatcher,
		msgBus:     msgBus,
		dedupe:     bus.NewDedupeCache(cfg.DedupeTTL(), cfg.Dedupe.MaxEntries),
	}
	rt.scheduler = escalate.NewScheduler(rt.onEscalation)
	defer rt.scheduler.Stop()

	server := gateway.NewServer(cfg.Gateway, msgBus, sessions)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return server.Start(gctx) })
	g.Go(func() error {
		rt.consumeInbound(gctx)
		return nil
	})
	g.Go(func() error {
		rt.sweepLoop(gctx)
		return nil
	})

	if cfg.Resolution.WatchCatalog {
		g.Go(func() error {
			if werr := catalog.Watch(gctx); werr != nil {
				slog.Warn("catalog watcher stopped", "error", werr)
			}
			return nil
		})
	}
	if cfg.Identity.WatchDir {
		g.Go(func() error {
			if werr := identity.WatchDirectory(gctx, cfg.Identity.DirectoryPath, resolver); werr != nil {
				slog.Warn("directory watcher stopped", "error", werr)
			}
			return nil
		})
	}
	if cfg.Cron.SummaryEnabled {
		g.Go(func() error {
			runSummaryCron(gctx, cfg, stores.Ledger, dispatcher, msgBus)
			return nil
		})
	}

	g.Go(func() error {
		if err := channelMgr.StartAll(gctx); err != nil {
			slog.Error("failed to start channels", "error", err)
		}
		return nil
	})

	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		channelMgr.StopAll(context.Background())
		cancel()
	}()

	slog.Info("washdesk gateway starting",
		"version", Version,
		"protocol", protocol.ProtocolVersion,
		"mode", cfg.Database.Mode,
		"channels", channelMgr.Names(),
		"grace", cfg.Grace(),
	)

	if err := g.Wait(); err != nil {
		slog.Error("gateway error", "error", err)
		os.Exit(1)
	}
}
