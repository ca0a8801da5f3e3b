package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"climb/internal/engine"
)

// app is the wired server: engine, transport and everything that needs
// closing on shutdown.
type app struct {
	engine  *engine.Engine
	hub     *EventHub
	handler http.Handler
	closers []func() error
}

func newApp(cfg Config, logger *log.Logger) (*app, error) {
	catalog, mode, err := cfg.rules()
	if err != nil {
		return nil, err
	}
	a := &app{}
	repo, closeRepo, err := openRepository(cfg, catalog)
	if err != nil {
		return nil, err
	}
	if closeRepo != nil {
		a.closers = append(a.closers, closeRepo)
	}

	a.hub = NewEventHub(logger)
	publishers := []engine.Publisher{a.hub}
	if cfg.JournalDir != "" {
		j := NewJournal(cfg.JournalDir, logger)
		publishers = append(publishers, j)
		a.closers = append(a.closers, j.Close)
	}

	a.engine = engine.New(repo, engine.Options{
		Catalog:    catalog,
		LockMode:   mode,
		Source:     cfg.diceSource(),
		Logger:     logger,
		Timeout:    cfg.TxTimeout,
		Publishers: publishers,
	})

	schemas, err := compileSchemas()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.handler = newMux(a.engine, a.hub, schemas, logger)
	logger.Printf("rules: lock_mode=%s columns=%d", mode, len(catalog.Columns()))
	if cfg.DiceSeed != 0 {
		logger.Printf("dice: seeded source seed=%d", cfg.DiceSeed)
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func main() {
	if len(os.Args) == 3 && os.Args[1] == "journal" {
		if err := dumpJournal(os.Args[2]); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		log.Fatalf("setup tracing: %v", err)
	}

	a, err := newApp(cfg, log.Default())
	if err != nil {
		log.Fatal(err)
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: a.handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on http://localhost%s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("serve: %v", err)
	}

	if err := a.Close(); err != nil {
		log.Printf("close: %v", err)
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Printf("shutdown tracing: %v", err)
	}
}

// dumpJournal prints a journal file as plain JSON lines.
func dumpJournal(path string) error {
	events, err := readJournal(path)
	if err != nil {
		return fmt.Errorf("read journal %s: %w", path, err)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}
