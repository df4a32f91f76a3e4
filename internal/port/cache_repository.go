package port

import (
	"context"

	"github.com/rl1809/stock-transfer/internal/core/domain"
)

type CacheRepository interface {
	// SaveDraft stores a resumable snapshot of a session's cart
	SaveDraft(ctx context.Context, draft domain.Draft) error

	// LoadDraft returns nil without error when no draft exists
	LoadDraft(ctx context.Context, sessionID string) (*domain.Draft, error)

	// DeleteDraft removes a session's draft
	DeleteDraft(ctx context.Context, sessionID string) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency removes a key so a failed submission can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
