package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"canvasd/internal/assets"
	"canvasd/internal/blobstore"
	"canvasd/internal/canvas"
	"canvasd/internal/generation"
	"canvasd/internal/handles"
	"canvasd/internal/http/handlers"
	httpapi "canvasd/internal/http/httpapi"
	"canvasd/internal/infra"
	"canvasd/internal/providers/audio"
	"canvasd/internal/providers/genai"
	"canvasd/internal/providers/image"
	"canvasd/internal/providers/video"
	"canvasd/internal/taskman"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open blob store")
	}
	defer func() { _ = blobs.Close() }()

	registry := handles.NewRegistry("/handles")
	assetStore := assets.New(blobs, registry, cfg.MaxHandles, logger)

	doc := canvas.NewDocument()
	tasks := taskman.NewManager(doc, logger)

	client := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		VideoModel: cfg.GeminiVideoModel,
		Logger:     &logger,
	})
	if cfg.GeminiAPIKey == "" {
		logger.Warn().Msg("GEMINI_API_KEY not set, serving synthetic assets")
	}

	gen := generation.NewService(
		doc,
		tasks,
		assetStore,
		image.NewGeminiGenerator(client),
		audio.NewGeminiGenerator(client),
		video.NewGeminiGenerator(client),
		generation.Config{PollInterval: cfg.VideoPollInterval, MaxPolls: cfg.VideoMaxPolls},
		logger,
	)

	app := handlers.NewApp(assetStore, gen, tasks, doc, logger)
	router := httpapi.NewRouter(app, registry, logger, httpapi.Options{
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  allowedOrigins(cfg),
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("canvasd listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}

	// Let in-flight generations settle so results are persisted before the
	// blob store closes.
	gen.Wait()
	logger.Info().Msg("server stopped")
}

func openBlobStore(ctx context.Context, cfg *infra.Config) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case "memory":
		return blobstore.NewMemoryStore(), nil
	case "sqlite":
		return blobstore.NewSQLiteStore(ctx, cfg.BlobPath)
	case "postgres":
		return blobstore.NewPostgresStore(ctx, cfg.BlobDSN)
	default:
		return blobstore.NewFileStore(cfg.BlobPath)
	}
}

func allowedOrigins(cfg *infra.Config) []string {
	if cfg.AppEnv == "development" {
		return []string{"http://localhost:5173", "http://localhost:3000"}
	}
	return nil
}
