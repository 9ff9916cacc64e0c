package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"deadsongs/cache"
	"deadsongs/config"
	"deadsongs/core/auth"
	"deadsongs/core/catalog"
	"deadsongs/core/like"
	"deadsongs/core/retry"
	"deadsongs/core/search"
	"deadsongs/db"
	"deadsongs/logger"
	"deadsongs/model"
	"deadsongs/repository"
	"deadsongs/repository/memrepo"
	"deadsongs/storage"
)

// Backend is the set of stores the engine runs against.
type Backend struct {
	Songs     repository.SongRepository
	Playlists repository.PlaylistRepository
	Likes     repository.LikeRepository

	// Redis and Resolver are nil when unavailable; the engine then runs
	// without caches and serves stored URLs as they are.
	Redis    *redis.Client
	Resolver *storage.Resolver
}

// OpenBackend connects to MySQL, Redis and MinIO. Only MySQL is required.
func OpenBackend(cfg *config.Config) (*Backend, error) {
	gdb, err := db.ConnectGormDB(cfg)
	if err != nil {
		return nil, err
	}
	b := &Backend{
		Songs:     repository.NewGormSongRepository(gdb),
		Playlists: repository.NewGormPlaylistRepository(gdb),
		Likes:     repository.NewGormLikeRepository(gdb),
	}

	if client, err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis unavailable, running without caches", logger.ErrorField(err))
	} else {
		b.Redis = client
		logger.Info("Connected to Redis", logger.String("addr", client.Options().Addr))
	}

	if resolver, err := storage.NewResolver(cfg); err != nil {
		logger.Warn("MinIO unavailable, serving stored URLs as-is", logger.ErrorField(err))
	} else {
		b.Resolver = resolver
	}
	return b, nil
}

// MemoryBackend is an in-process backend seeded with a few demo songs.
func MemoryBackend() *Backend {
	store := memrepo.New()
	for _, s := range demoSongs {
		store.AddSong(s)
	}
	store.AddPlaylist(model.Playlist{Name: "Late Night", OwnerID: "demo"})
	store.AddPlaylist(model.Playlist{Name: "Road Trip", OwnerID: "demo"})
	return &Backend{Songs: store, Playlists: store, Likes: store}
}

var demoSongs = []model.Song{
	{Title: "Morning Dew", Artist: "The Fields", FileURL: "/media/morning-dew.mp3", Genre: "folk", PlayCount: 42, LikesCount: 7},
	{Title: "Night Drive", Artist: "Neon Coast", FileURL: "/media/night-drive.mp3", Genre: "synthwave", PlayCount: 120, LikesCount: 31},
	{Title: "Low Tide", Artist: "Harbor", FileURL: "/media/low-tide.mp3", Genre: "ambient", PlayCount: 18, LikesCount: 2},
	{Title: "Dead Air", Artist: "Static Choir", FileURL: "/media/dead-air.mp3", Genre: "rock", PlayCount: 77, LikesCount: 40},
}

// Close releases the shared connections.
func (b *Backend) Close() {
	if err := db.CloseGormDB(); err != nil {
		logger.Warn("failed to close database", logger.ErrorField(err))
	}
	if b.Redis != nil {
		if err := cache.CloseRedis(); err != nil {
			logger.Warn("failed to close Redis", logger.ErrorField(err))
		}
	}
}

// NewCatalogStore builds the catalog with whatever caches b offers.
func NewCatalogStore(cfg *config.Config, b *Backend) *catalog.Store {
	opts := []catalog.Option{catalog.WithRetryPolicy(retry.FromConfig(cfg))}
	if b.Redis != nil {
		opts = append(opts, catalog.WithSnapshotCache(cache.NewCatalogCache(b.Redis, cfg.CacheTTL)))
	}
	if b.Resolver != nil {
		opts = append(opts, catalog.WithURLResolver(b.Resolver))
	}
	return catalog.NewStore(b.Songs, opts...)
}

// NewDeps wires the engine components on top of b.
func NewDeps(cfg *config.Config, b *Backend) Deps {
	policy := retry.FromConfig(cfg)
	store := NewCatalogStore(cfg, b)

	likeOpts := []like.Option{like.WithRetryPolicies(policy, policy.WithAttempts(cfg.CounterAttempts))}
	if b.Redis != nil {
		likeOpts = append(likeOpts, like.WithMirror(cache.NewLikeCache(b.Redis, cfg.CacheTTL)))
	}

	d := Deps{
		Config:    cfg,
		Catalog:   store,
		Search:    search.NewAggregator(b.Songs, b.Playlists, store, policy),
		Likes:     like.NewReconciler(b.Likes, b.Songs, store, likeOpts...),
		Songs:     b.Songs,
		Playlists: b.Playlists,
		Tokens:    auth.NewTokenProvider(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTokenTTL),
	}
	if b.Redis != nil {
		d.Playback = cache.NewPlaybackCache(b.Redis, cfg.PlaybackTTL)
	}
	return d
}

// Start runs the HTTP server until SIGINT or SIGTERM.
func Start(cfg *config.Config, memory bool) error {
	var (
		b   *Backend
		err error
	)
	if memory {
		b = MemoryBackend()
		logger.Info("Using in-memory backend")
	} else if b, err = OpenBackend(cfg); err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := NewDeps(cfg, b)
	warmCatalog(ctx, deps.Catalog, model.SortByPlayCount)
	if cfg.EnvFile != "" {
		go watchConfig(ctx, cfg.EnvFile)
	}

	handler := NewAPIHandler(deps)
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-stop:
	}
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited")
	return nil
}

// watchConfig applies LOG_LEVEL changes from the env file while running.
func watchConfig(ctx context.Context, path string) {
	err := config.Watch(ctx, path, func(values map[string]string) {
		lvl, ok := values["LOG_LEVEL"]
		if !ok || logger.LogLevel(lvl) == logger.Level() {
			return
		}
		if err := logger.SetLevel(logger.LogLevel(lvl)); err != nil {
			logger.Warn("ignoring invalid LOG_LEVEL", logger.String("value", lvl), logger.ErrorField(err))
			return
		}
		logger.Info("log level changed", logger.String("level", lvl))
	})
	if err != nil && ctx.Err() == nil {
		logger.Warn("config watcher stopped", logger.ErrorField(err))
	}
}
