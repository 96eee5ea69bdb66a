package main

import (
	"context"
	"errors"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ezeslucky/drawio/internal/auth"
	"github.com/ezeslucky/drawio/internal/config"
	"github.com/ezeslucky/drawio/internal/http"
	"github.com/ezeslucky/drawio/internal/storage"
)

func run(ctx context.Context) error {
	cfg, err := config.Load(false)
	if err != nil {
		return err
	}

	store, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	authService, err := auth.NewAuthService(ctx, auth.Config{
		Secret:      cfg.JWTSecret,
		TokenExpiry: cfg.TokenExpiry,
	})
	if err != nil {
		return err
	}

	apiServer := http.NewAPIServer(authService, store, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
