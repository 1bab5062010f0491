package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/HerbHall/parley/internal/auth"
	"github.com/HerbHall/parley/internal/chat"
	"github.com/HerbHall/parley/internal/config"
	"github.com/HerbHall/parley/internal/history"
	"github.com/HerbHall/parley/internal/imagegen"
	"github.com/HerbHall/parley/internal/ingest"
	"github.com/HerbHall/parley/internal/llm"
	"github.com/HerbHall/parley/internal/persist"
	"github.com/HerbHall/parley/internal/protect"
	"github.com/HerbHall/parley/internal/rag"
	"github.com/HerbHall/parley/internal/server"
	"github.com/HerbHall/parley/internal/store"
	"github.com/HerbHall/parley/internal/stream"
	"github.com/HerbHall/parley/internal/validate"
	"github.com/HerbHall/parley/internal/version"
	"github.com/HerbHall/parley/internal/ws"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(version.Info())
		return
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	v, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("parley starting", zap.String("version", version.Short()))

	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	srvCfg := server.DefaultConfig()
	if err := config.Decode(v, "server", &srvCfg); err != nil {
		logger.Fatal("invalid server configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open database
	dbPath := v.GetString("database.path")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		logger.Fatal("failed to create database directory", zap.Error(err))
	}
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.CheckVersion(ctx, version.Short()); err != nil {
		if errors.Is(err, store.ErrNewerSchema) {
			logger.Fatal("database was written by a newer parley", zap.Error(err))
		}
		logger.Warn("database version check failed", zap.Error(err))
	}
	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	// Shared redis client, used by the rate limiter and the upload queue.
	var rdb *redis.Client
	if addr := v.GetString("redis.addr"); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		})
		defer rdb.Close()
		logger.Info("redis configured", zap.String("component", "redis"), zap.String("addr", addr))
	}

	// Protection pipeline
	limiter, err := newLimiter(ctx, v, rdb, logger)
	if err != nil {
		logger.Fatal("failed to initialize rate limiter", zap.Error(err))
	}
	blocked := config.StringList(v, "protection.blocked_ips")
	gate := protect.NewGate(protect.NewFilter(blocked...), limiter, auth.UserID, logger.Named("protect"))
	logger.Info("protection initialized",
		zap.String("component", "protect"),
		zap.Int("blocked_addresses", len(blocked)),
	)

	policies := chat.Policies{Default: protect.DefaultPolicy, Upload: protect.UploadPolicy}
	if err := config.Decode(v, "protection.default", &policies.Default); err != nil {
		logger.Fatal("invalid rate limit policy", zap.Error(err))
	}
	if err := config.Decode(v, "protection.upload", &policies.Upload); err != nil {
		logger.Fatal("invalid rate limit policy", zap.Error(err))
	}

	limits, err := loadLimits(v)
	if err != nil {
		logger.Fatal("invalid validation configuration", zap.Error(err))
	}

	// Identity
	var authMW server.Middleware
	authCfg := auth.Config{}
	if err := config.Decode(v, "auth", &authCfg); err != nil {
		logger.Fatal("invalid auth configuration", zap.Error(err))
	}
	if authCfg.JWTSecret != "" {
		verifier, err := auth.NewVerifier(authCfg)
		if err != nil {
			logger.Fatal("failed to initialize token verifier", zap.Error(err))
		}
		authMW = auth.Middleware(verifier, logger.Named("auth"))
		logger.Info("JWT secret loaded from configuration", zap.String("component", "auth"))
	} else {
		logger.Warn("auth.jwt_secret not set; every caller is anonymous and retrieval chat is unavailable",
			zap.String("component", "auth"),
		)
	}

	// Persistence
	sink, err := newPersistSink(ctx, v, db, logger.Named("persist"))
	if err != nil {
		logger.Fatal("failed to initialize persistence", zap.Error(err))
	}

	// Model provider
	llmCfg := llm.DefaultConfig()
	if err := config.Decode(v, "llm", &llmCfg); err != nil {
		logger.Fatal("invalid llm configuration", zap.Error(err))
	}
	provider, err := llm.NewProvider(llmCfg, logger.Named("llm"))
	if err != nil {
		logger.Fatal("failed to initialize llm provider", zap.Error(err))
	}
	probeCtx, probeCancel := context.WithTimeout(ctx, 5*time.Second)
	llm.Probe(probeCtx, provider, llmCfg.Provider, logger.Named("llm"))
	probeCancel()

	registry := stream.NewRegistry()
	relay := stream.NewRelay(registry, v.GetDuration("stream.timeout"), logger.Named("stream"))
	hub := ws.NewHub(logger.Named("ws"))

	imgCfg := imagegen.DefaultConfig()
	if err := config.Decode(v, "image", &imgCfg); err != nil {
		logger.Fatal("invalid image configuration", zap.Error(err))
	}

	deps := chat.Deps{
		Gate:     gate,
		Relay:    relay,
		Registry: registry,
		Provider: provider,
		Images:   imagegen.New(imgCfg, logger.Named("imagegen")),
		Hub:      hub,
		Limits:   limits,
		Policies: policies,
	}
	if sink != nil {
		deps.Recorder = sink
	}

	// Retrieval
	if v.GetBool("rag.enabled") {
		retriever, closeFn, err := newRetriever(v, llmCfg, logger.Named("rag"))
		if err != nil {
			logger.Fatal("failed to initialize retrieval", zap.Error(err))
		}
		defer closeFn()
		deps.Retriever = retriever
		logger.Info("retrieval enabled", zap.String("component", "rag"))
	}

	// Document ingestion
	if rdb != nil {
		spool, err := ingest.NewSpool(filepath.Join(srvCfg.DataDir, "uploads"))
		if err != nil {
			logger.Fatal("failed to initialize upload spool", zap.Error(err))
		}
		deps.Spool = spool
		deps.Queue = ingest.NewRedisQueue(rdb, v.GetString("upload.queue_key"))
		logger.Info("document ingestion enabled", zap.String("component", "ingest"))
	} else {
		logger.Warn("redis.addr not set; uploads are unavailable", zap.String("component", "ingest"))
	}

	chatHandler := chat.NewHandler(deps, logger.Named("chat"))

	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return err
		}
		if rdb != nil {
			return rdb.Ping(ctx).Err()
		}
		return nil
	})

	srv := server.New(srvCfg, logger, readyCheck, authMW, chatHandler)
	srv.SetHealthDetails(func() map[string]int {
		return map[string]int{
			"active_streams": registry.Len(),
			"ws_clients":     hub.ClientCount(),
		}
	})
	srv.RegisterOnShutdown(func() {
		if n := registry.StopAll(stream.ErrShutdown); n > 0 {
			logger.Info("cancelled active streams", zap.Int("count", n))
		}
	})
	srv.RegisterOnShutdown(func() {
		hub.CloseAll("server shutting down")
	})

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("parley ready", zap.String("addr", srvCfg.Addr()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if sink != nil {
		if err := sink.Drain(shutdownCtx); err != nil {
			logger.Warn("pending writes abandoned", zap.Error(err))
		}
	}
	cancel()

	logger.Info("parley stopped")
}

// newLimiter builds the rate table named by protection.backend. The memory
// table gets a janitor tied to ctx.
func newLimiter(ctx context.Context, v *viper.Viper, rdb *redis.Client, logger *zap.Logger) (protect.Limiter, error) {
	switch backend := v.GetString("protection.backend"); backend {
	case "memory", "":
		l, err := protect.NewMemoryLimiter(v.GetInt("protection.capacity"))
		if err != nil {
			return nil, err
		}
		go l.Run(ctx, v.GetDuration("protection.sweep_interval"))
		logger.Info("rate limiter ready", zap.String("backend", "memory"))
		return l, nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("protection.backend is redis but redis.addr is not set")
		}
		logger.Info("rate limiter ready", zap.String("backend", "redis"))
		return protect.NewRedisLimiter(rdb), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter backend: %s", backend)
	}
}

// newPersistSink returns nil when persistence.backend is "none".
func newPersistSink(ctx context.Context, v *viper.Viper, db *store.SQLiteStore, logger *zap.Logger) (*persist.Sink, error) {
	var w persist.Writer
	switch backend := v.GetString("persistence.backend"); backend {
	case "none":
		logger.Warn("persistence disabled")
		return nil, nil
	case "sqlite", "":
		sw, err := persist.NewSQLiteWriter(ctx, db)
		if err != nil {
			return nil, err
		}
		w = sw
	case "supabase":
		var cfg persist.SupabaseConfig
		if err := config.Decode(v, "persistence.supabase", &cfg); err != nil {
			return nil, err
		}
		sw, err := persist.NewSupabaseWriter(cfg)
		if err != nil {
			return nil, err
		}
		w = sw
	default:
		return nil, fmt.Errorf("unknown persistence backend: %s", backend)
	}
	logger.Info("persistence ready", zap.String("backend", v.GetString("persistence.backend")))
	return persist.NewSink(w, v.GetDuration("persistence.write_timeout"), logger), nil
}

// newRetriever connects the embedder and the vector store. The returned func
// closes the vector store connection.
func newRetriever(v *viper.Viper, llmCfg llm.Config, logger *zap.Logger) (*rag.Retriever, func(), error) {
	embedder, err := llm.NewEmbedder(llmCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	var qcfg rag.QdrantConfig
	if err := config.Decode(v, "rag.qdrant", &qcfg); err != nil {
		return nil, nil, err
	}
	searcher, err := rag.NewQdrantSearcher(qcfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := searcher.Close(); err != nil {
			logger.Warn("closing vector store", zap.Error(err))
		}
	}
	return rag.NewRetriever(embedder, searcher, v.GetInt("rag.top_k")), closeFn, nil
}

func loadLimits(v *viper.Viper) (chat.Limits, error) {
	limits := chat.DefaultLimits()
	limits.MaxLength = v.GetInt("validation.max_length")
	limits.ImageMaxLength = v.GetInt("validation.image_max_length")

	allowed, err := validate.Pattern(v.GetString("validation.allowed"))
	if err != nil {
		return limits, err
	}
	limits.Allowed = allowed

	if err := config.Decode(v, "history", &limits.History); err != nil {
		return limits, err
	}
	if limits.History == (history.Limits{}) {
		limits.History = history.DefaultLimits
	}
	limits.Upload.MaxBytes = v.GetInt64("upload.max_bytes")
	return limits, nil
}
