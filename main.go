package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	"github.com/alimasry/go-inline-edit/config"
	"github.com/alimasry/go-inline-edit/editor"
	"github.com/alimasry/go-inline-edit/logging"
	"github.com/alimasry/go-inline-edit/server"
	"github.com/alimasry/go-inline-edit/session"
	"github.com/alimasry/go-inline-edit/store"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	surface, cleanup, err := buildSurface(cfg, logger)
	if err != nil {
		logger.Fatal("building surface", zap.Error(err))
	}
	defer cleanup()

	ctrl := session.NewController(surface, logger)
	ctrl.SetAutoScroll(cfg.Session.AutoScroll)
	defer ctrl.Close()

	gw := server.NewGateway(ctrl, logger)
	if fs, ok := surface.(*editor.FileSurface); ok {
		fs.OnExternalChange(gw.NotifyExternalChange)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.NewHandler(gw),
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr), zap.String("surface", cfg.Surface.Kind))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

// buildSurface picks the collaborator surface from config. The returned
// cleanup releases whatever the surface holds (watchers, caches, clients).
func buildSurface(cfg *config.Config, logger *zap.Logger) (editor.Surface, func(), error) {
	switch cfg.Surface.Kind {
	case "file":
		fs, err := editor.NewFileSurface(cfg.Surface.Root, logger)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() { fs.Close() }, nil
	case "store":
		docs, cleanup, err := buildStore(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return editor.NewStoreSurface(docs), cleanup, nil
	default:
		return editor.NewMemorySurface(), func() {}, nil
	}
}

func buildStore(cfg *config.Config, logger *zap.Logger) (store.DocumentStore, func(), error) {
	var backing store.DocumentStore
	cleanup := func() {}

	switch cfg.Store.Kind {
	case "firestore":
		client, err := firestore.NewClient(context.Background(), cfg.Store.Project)
		if err != nil {
			return nil, nil, err
		}
		backing = store.NewFirestoreStore(client)
		cleanup = func() { client.Close() }
	default:
		backing = store.NewMemoryStore()
	}

	if interval := cfg.Store.FlushInterval(); interval > 0 {
		cached := store.NewCachedStore(backing, interval, logger)
		inner := cleanup
		cleanup = func() {
			cached.Close()
			inner()
		}
		return cached, cleanup, nil
	}
	return backing, cleanup, nil
}
