package main

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"storyeditor/api/db"
	"storyeditor/api/internal/app"
	"storyeditor/api/internal/codec"
	"storyeditor/api/internal/config"
	"storyeditor/api/internal/media"
	"storyeditor/api/internal/revisions"
	"storyeditor/api/internal/search"
	"storyeditor/api/internal/session"
	"storyeditor/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	database, err := store.Open(ctx, cfg.DatabaseURL, store.PoolConfig{MaxOpenConns: cfg.DBMaxOpen, MaxIdleConns: cfg.DBMaxIdle})
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer database.Close()

	var migrations fs.FS = db.Migrations
	migrationsDir := "migrations"
	if strings.TrimSpace(cfg.MigrationsDir) != "" {
		migrations, migrationsDir = os.DirFS(cfg.MigrationsDir), "."
	}
	if err := store.ApplyMigrations(ctx, database, migrations, migrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	storyCodec, err := codec.Default()
	if err != nil {
		log.Fatalf("story codec: %v", err)
	}

	dataStore := store.NewPostgresStore(database)
	revisionService := revisions.New(cfg.ReposDir)

	pgfts := search.NewPgFTS(database)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	go searchService.ReindexAll(ctx)

	var working session.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for working copies")
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.WorkingCopyTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		working = redisStore
	} else {
		log.Printf("Using in-process memory for working copies")
		working = session.NewMemoryStore(cfg.WorkingCopyTTL)
	}

	opts := app.Options{Search: searchService}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		objects, err := media.NewMinioStore(ctx, media.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MediaPublicURL,
		})
		if err != nil {
			log.Fatalf("media storage failed: %v", err)
		}
		opts.Media = media.NewService(objects)
	} else {
		log.Printf("MINIO_ENDPOINT not set; media uploads disabled")
	}

	service := app.New(dataStore, revisionService, working, storyCodec, opts)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Story API listening on %s (schema version %d)", cfg.Addr, storyCodec.CurrentVersion())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
