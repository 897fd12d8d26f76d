package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/stamp/internal/issuer/domain"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict means a compare-and-swap write lost to a concurrent
	// writer: the row was no longer in the expected state.
	ErrConflict = errors.New("store: conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. It exposes sub-repositories to keep concerns
// tidy and testable, and to actively stop people from accidentally doing
// transactions within transactions.
type Store interface {
	RefreshTokens() RefreshTokens
	ServiceClients() ServiceClients

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// Use it for multi-step operations that must be atomic (e.g., refresh
	// rotation). The caller MUST call Commit() or Rollback() on the
	// returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshTokenRecord) error

	// GetRefreshTokenByHash returns the record by its fingerprint.
	// Replaced and revoked records are still returned; callers need them
	// for replay detection.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshTokenRecord, error)

	// MarkRefreshTokenReplaced is the rotation CAS: it sets replaced_by
	// only if the record is still unreplaced and unrevoked. Returns
	// ErrConflict when a concurrent rotation got there first.
	MarkRefreshTokenReplaced(ctx context.Context, id, replacedByID string) error

	// RevokeRefreshToken revokes a single record by id.
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) error

	// RevokeRefreshTokenFamily revokes every not-yet-revoked record in a
	// family, across all generations.
	RevokeRefreshTokenFamily(ctx context.Context, familyID uuid.UUID, at time.Time) error

	// ListRefreshTokenFamily returns all records of a family, oldest first.
	ListRefreshTokenFamily(ctx context.Context, familyID uuid.UUID) ([]domain.RefreshTokenRecord, error)

	// DeleteRefreshTokensExpiredBefore removes records whose expiry
	// precedes the cutoff. Housekeeping only.
	DeleteRefreshTokensExpiredBefore(ctx context.Context, cutoff time.Time) error
}

type ServiceClients interface {
	// GetServiceClientByID fetches a client for the client_credentials grant.
	GetServiceClientByID(ctx context.Context, id string) (domain.ServiceClient, error)

	// CreateServiceClient inserts a new client (id is ULID).
	CreateServiceClient(ctx context.Context, c domain.ServiceClient) error

	// ListServiceClients returns all clients ordered by creation date (newest first).
	ListServiceClients(ctx context.Context) ([]domain.ServiceClient, error)

	// DeleteServiceClient removes a client registration.
	DeleteServiceClient(ctx context.Context, id string) error
}
