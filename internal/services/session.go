package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"rainfall-platform/internal/models"
	"rainfall-platform/pkg/logging"
)

// Session is the caller context handed to every importer. The transport
// decides Authenticated; the importers only enforce it.
type Session struct {
	Authenticated bool
	Actor         string
	UploadID      string
}

// NewSession starts a session with a fresh upload id
func NewSession(actor string, authenticated bool) Session {
	return Session{
		Authenticated: authenticated,
		Actor:         actor,
		UploadID:      uuid.NewString(),
	}
}

func (s Session) authorize() error {
	if !s.Authenticated {
		return models.ErrUnauthenticated
	}
	return nil
}

func (s Session) bind(ctx context.Context) context.Context {
	if s.UploadID == "" {
		return ctx
	}
	return logging.WithUploadID(ctx, s.UploadID)
}

// errorType labels a fatal import error for metrics.
func errorType(err error) string {
	var (
		fpe *models.FileParseError
		se  *models.SchemaError
		pe  *models.PersistenceError
	)
	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		return "unauthenticated"
	case errors.As(err, &fpe):
		return "file_parse"
	case errors.As(err, &se):
		return "schema"
	case errors.As(err, &pe):
		return "persistence"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
