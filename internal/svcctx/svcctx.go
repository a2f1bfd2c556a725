// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/config"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/jobs"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/providers"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/storage"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Store     *store.Store
	Blobs     *storage.BlobStore
	Jobs      *jobs.Controller
	OCR       providers.OCRReader
	Completer providers.TextCompleter
	ConfigMgr *config.Manager
	Logger    *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the statement store from context.
func StoreFrom(ctx context.Context) *store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// BlobsFrom extracts the blob store from context.
func BlobsFrom(ctx context.Context) *storage.BlobStore {
	if s := ServicesFrom(ctx); s != nil {
		return s.Blobs
	}
	return nil
}

// JobsFrom extracts the job controller from context.
func JobsFrom(ctx context.Context) *jobs.Controller {
	if s := ServicesFrom(ctx); s != nil {
		return s.Jobs
	}
	return nil
}

// OCRFrom extracts the OCR reader from context.
func OCRFrom(ctx context.Context) providers.OCRReader {
	if s := ServicesFrom(ctx); s != nil {
		return s.OCR
	}
	return nil
}

// CompleterFrom extracts the chat-completion provider from context.
func CompleterFrom(ctx context.Context) providers.TextCompleter {
	if s := ServicesFrom(ctx); s != nil {
		return s.Completer
	}
	return nil
}

// ConfigManagerFrom extracts the config manager from context.
func ConfigManagerFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigMgr
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}
