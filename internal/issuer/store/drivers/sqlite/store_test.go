package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/stamp/internal/issuer/domain"
	"github.com/aussiebroadwan/stamp/internal/issuer/store"
	"github.com/aussiebroadwan/stamp/internal/issuer/store/drivers/sqlite"
	"github.com/aussiebroadwan/stamp/pkg/idx"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "stamp.db")
	s, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func newRecord(userID string, familyID uuid.UUID) domain.RefreshTokenRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.RefreshTokenRecord{
		ID:        idx.New().String(),
		UserID:    userID,
		TokenHash: idx.New().String(), // unique stand-in for a fingerprint
		FamilyID:  familyID,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := newRecord("user-1", uuid.New())
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, rec))

	got, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, rec.TokenHash)
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, rec.UserID, got.UserID)
	require.Equal(t, rec.FamilyID, got.FamilyID)
	require.Nil(t, got.RevokedAt)
	require.Nil(t, got.ReplacedBy)
	require.True(t, got.Active(time.Now().UTC()))

	_, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, "no-such-hash")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkRefreshTokenReplacedIsCAS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	family := uuid.New()
	gen1 := newRecord("user-1", family)
	gen2 := newRecord("user-1", family)
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, gen1))
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, gen2))

	// First rotation wins
	require.NoError(t, s.RefreshTokens().MarkRefreshTokenReplaced(ctx, gen1.ID, gen2.ID))

	// Second attempt against the same record loses
	err := s.RefreshTokens().MarkRefreshTokenReplaced(ctx, gen1.ID, "someone-else")
	require.ErrorIs(t, err, store.ErrConflict)

	got, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, gen1.TokenHash)
	require.NoError(t, err)
	require.True(t, got.Replaced())
	require.Equal(t, gen2.ID, *got.ReplacedBy)
}

func TestMarkRefreshTokenReplacedRejectsRevoked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := newRecord("user-1", uuid.New())
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, rec))
	require.NoError(t, s.RefreshTokens().RevokeRefreshToken(ctx, rec.ID, time.Now().UTC()))

	err := s.RefreshTokens().MarkRefreshTokenReplaced(ctx, rec.ID, "next")
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestReplacedByRequiresExistingRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	family := uuid.New()
	gen1 := newRecord("user-1", family)
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, gen1))

	// replaced_by is a self-referential foreign key: pointing it at an id
	// that was never inserted must fail, on every pooled connection.
	err := s.RefreshTokens().MarkRefreshTokenReplaced(ctx, gen1.ID, idx.New().String())
	require.Error(t, err)

	got, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, gen1.TokenHash)
	require.NoError(t, err)
	require.False(t, got.Replaced())

	// The rotation ordering: the successor row goes in first, then the
	// predecessor is linked to it. Inside one transaction this must pass
	// the constraint.
	gen2 := newRecord("user-1", family)
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, gen2); err != nil {
			return err
		}
		return tx.RefreshTokens().MarkRefreshTokenReplaced(ctx, gen1.ID, gen2.ID)
	}))

	got, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, gen1.TokenHash)
	require.NoError(t, err)
	require.True(t, got.Replaced())
	require.Equal(t, gen2.ID, *got.ReplacedBy)
}

func TestRevokeRefreshTokenFamily(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	family := uuid.New()
	other := uuid.New()

	var familyRecords []domain.RefreshTokenRecord
	for range 3 {
		rec := newRecord("user-1", family)
		require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, rec))
		familyRecords = append(familyRecords, rec)
	}
	bystander := newRecord("user-2", other)
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, bystander))

	require.NoError(t, s.RefreshTokens().RevokeRefreshTokenFamily(ctx, family, time.Now().UTC()))

	listed, err := s.RefreshTokens().ListRefreshTokenFamily(ctx, family)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for _, rec := range listed {
		require.True(t, rec.Revoked())
	}

	// Other families are untouched
	got, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, bystander.TokenHash)
	require.NoError(t, err)
	require.False(t, got.Revoked())
}

func TestDeleteRefreshTokensExpiredBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()

	stale := newRecord("user-1", uuid.New())
	stale.ExpiresAt = now.Add(-time.Hour)
	fresh := newRecord("user-1", uuid.New())

	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, stale))
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, fresh))

	require.NoError(t, s.RefreshTokens().DeleteRefreshTokensExpiredBefore(ctx, now))

	_, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, stale.TokenHash)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, fresh.TokenHash)
	require.NoError(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := newRecord("user-1", uuid.New())
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, rec); err != nil {
			return err
		}
		return context.Canceled // force rollback
	})
	require.Error(t, err)

	_, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, rec.TokenHash)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestServiceClientRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	client := domain.ServiceClient{
		ID:          idx.New().String(),
		Name:        "reporting",
		SecretHash:  "$argon2id$v=19$m=32768,t=3,p=2$c2FsdA$aGFzaA",
		Permissions: []string{"reports:read", "reports:generate"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.ServiceClients().CreateServiceClient(ctx, client))

	got, err := s.ServiceClients().GetServiceClientByID(ctx, client.ID)
	require.NoError(t, err)
	require.Equal(t, client.Name, got.Name)
	require.Equal(t, client.SecretHash, got.SecretHash)
	require.ElementsMatch(t, client.Permissions, got.Permissions)

	all, err := s.ServiceClients().ListServiceClients(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.ServiceClients().DeleteServiceClient(ctx, client.ID))
	_, err = s.ServiceClients().GetServiceClientByID(ctx, client.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}
