package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"credit-ledger-go/internal/audit"
	"credit-ledger-go/internal/database"
	"credit-ledger-go/internal/ledger"
	"credit-ledger-go/internal/models"
	"credit-ledger-go/internal/store"
	"credit-ledger-go/internal/store/memory"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services bundles everything a command needs to run ledger operations.
type Services struct {
	Store      store.Store
	Ledger     *ledger.Service
	Dispatcher *audit.Dispatcher
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the store, starts the audit dispatcher and
// builds the ledger service on top of both.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	st, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	sink, err := NewAuditSink(ctx, cfg.Audit)
	if err != nil {
		st.Close()
		return nil, err
	}

	dispatcher := audit.NewDispatcher(sink, audit.Config{
		BufferSize:    cfg.Audit.BufferSize,
		Workers:       cfg.Audit.Workers,
		NotifyTimeout: cfg.Audit.NotifyTimeout,
	})

	return &Services{
		Store:      st,
		Ledger:     ledger.NewService(st, dispatcher, cfg.Ledger),
		Dispatcher: dispatcher,
	}, nil
}

// OpenStore picks the backend named by cfg.Driver.
func OpenStore(ctx context.Context, cfg models.DatabaseConfig) (store.Store, error) {
	if cfg.Driver == "memory" {
		zap.L().Warn("Using in-memory store, nothing will be persisted")
		return memory.New(), nil
	}

	dbService, err := database.NewService(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// NewAuditSink builds the sink named by cfg.Sink.
func NewAuditSink(ctx context.Context, cfg models.AuditConfig) (audit.Notifier, error) {
	switch strings.ToLower(cfg.Sink) {
	case "", "log":
		return audit.LogSink{}, nil
	case "none":
		return audit.NopSink{}, nil
	case "formance":
		sink, err := audit.NewFormanceSink(ctx, cfg.Formance)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize formance audit sink: %w", err)
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown audit sink %q (expected log, formance or none)", cfg.Sink)
	}
}

// Close drains pending audit events before closing the store.
func (cs *Services) Close() {
	if cs.Dispatcher != nil {
		cs.Dispatcher.Close()
	}
	if cs.Store != nil {
		cs.Store.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
