package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/stamp/internal/issuer/domain"
	"github.com/aussiebroadwan/stamp/internal/issuer/store"
	"github.com/aussiebroadwan/stamp/pkg/cryptox"
	"github.com/aussiebroadwan/stamp/pkg/idx"
	"github.com/aussiebroadwan/stamp/pkg/slogx"

	"github.com/google/uuid"
)

// ErrInvalidRefresh is the uniform rejection for every refresh exchange
// failure: unknown token, expired, revoked, or replayed. Deliberately one
// error so the response never tells an attacker which case they hit.
var ErrInvalidRefresh = errors.New("invalid_refresh_token")

// Principal is what the issuer needs to know about a user to mint an
// access token.
type Principal struct {
	Email       string
	Permissions []string
}

// PrincipalSource resolves a user id to their current email and
// permissions at exchange time, so a refresh can never resurrect
// permissions that were taken away since the last issue.
type PrincipalSource interface {
	Principal(ctx context.Context, userID string) (Principal, error)
}

// NullPrincipalSource is the stand-in used when no user directory is
// wired: every subject resolves to an empty principal.
type NullPrincipalSource struct{}

func (NullPrincipalSource) Principal(context.Context, string) (Principal, error) {
	return Principal{}, nil
}

// RotationService owns the refresh token lifecycle: issue, single-use
// rotation, replay detection with family revocation, and explicit revoke.
type RotationService struct {
	Store      store.Store
	Issuer     *TokenIssuer
	Validator  *TokenValidator
	Principals PrincipalSource
}

func NewRotationService(st store.Store, issuer *TokenIssuer, principals PrincipalSource) *RotationService {
	if principals == nil {
		principals = NullPrincipalSource{}
	}
	return &RotationService{
		Store:      st,
		Issuer:     issuer,
		Validator:  NewTokenValidator(issuer),
		Principals: principals,
	}
}

// IssuePair mints a fresh access/refresh pair for a user, starting a new
// rotation family.
func (s *RotationService) IssuePair(ctx context.Context, userID string) (*domain.TokenPair, error) {
	now := time.Now().UTC()

	principal, err := s.Principals.Principal(ctx, userID)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.Issuer.GenerateAccessToken(userID, principal.Email, principal.Permissions)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.Issuer.GenerateRefreshToken(userID)
	if err != nil {
		return nil, err
	}

	rec := domain.RefreshTokenRecord{
		ID:        idx.New().String(),
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(refreshToken),
		FamilyID:  uuid.New(),
		ExpiresAt: now.Add(s.Issuer.RefreshTTL()),
		CreatedAt: now,
	}
	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, rec); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.Issuer.AccessTTL().Seconds()),
	}, nil
}

// Rotate exchanges a refresh token for a new pair. Each token is single
// use: the presented generation is marked replaced and a new generation in
// the same family is stored. Presenting an already-replaced or revoked
// token is treated as replay and revokes the entire family.
//
// The create-then-replace happens in one transaction guarded by a
// compare-and-swap, so when two requests race on the same token exactly
// one wins; the loser is handled as a replay.
func (s *RotationService) Rotate(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	// 1. The token itself must be one of ours and unexpired
	claims, err := s.Validator.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	// 2. Look up the stored record by fingerprint
	fp := cryptox.FingerprintToken(refreshToken)
	rec, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}
	if rec.UserID != claims.Subject {
		return nil, ErrInvalidRefresh
	}

	// 3. Replay detection: a replaced or revoked generation being
	// presented again means the token leaked somewhere. Burn the family.
	// The revocation must stick even though the exchange fails, so it
	// runs outside the rotation transaction.
	if rec.Replaced() || rec.Revoked() {
		l.Warn("refresh token replay detected, revoking family",
			slog.String("user_id", rec.UserID),
			slog.String("family_id", rec.FamilyID.String()),
		)
		if err := s.Store.RefreshTokens().RevokeRefreshTokenFamily(ctx, rec.FamilyID, now); err != nil {
			return nil, err
		}
		return nil, ErrInvalidRefresh
	}
	if !now.Before(rec.ExpiresAt) {
		return nil, ErrInvalidRefresh
	}

	// 4. Mint the next generation
	principal, err := s.Principals.Principal(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}
	accessToken, err := s.Issuer.GenerateAccessToken(rec.UserID, principal.Email, principal.Permissions)
	if err != nil {
		return nil, err
	}
	newRefresh, err := s.Issuer.GenerateRefreshToken(rec.UserID)
	if err != nil {
		return nil, err
	}

	newRec := domain.RefreshTokenRecord{
		ID:        idx.New().String(),
		UserID:    rec.UserID,
		TokenHash: cryptox.FingerprintToken(newRefresh),
		FamilyID:  rec.FamilyID, // same family, next generation
		ExpiresAt: now.Add(s.Issuer.RefreshTTL()),
		CreatedAt: now,
	}

	// 5. Atomically: insert the new record, then CAS the old one to
	// replaced. The new row must exist first because replaced_by
	// references it; on a lost race the rollback removes it again.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, newRec); err != nil {
			return err
		}
		return tx.RefreshTokens().MarkRefreshTokenReplaced(ctx, rec.ID, newRec.ID)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a concurrent rotation on the same token. The other
			// request already consumed it, so this presentation is a
			// replay of a now-replaced generation.
			l.Warn("concurrent refresh rotation lost, revoking family",
				slog.String("user_id", rec.UserID),
				slog.String("family_id", rec.FamilyID.String()),
			)
			if revokeErr := s.Store.RefreshTokens().RevokeRefreshTokenFamily(ctx, rec.FamilyID, now); revokeErr != nil {
				return nil, revokeErr
			}
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.Issuer.AccessTTL().Seconds()),
	}, nil
}

// Revoke invalidates a single refresh token by its raw value. Unknown
// tokens are not an error; revocation is idempotent.
func (s *RotationService) Revoke(ctx context.Context, refreshToken string) error {
	fp := cryptox.FingerprintToken(refreshToken)
	rec, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Store.RefreshTokens().RevokeRefreshToken(ctx, rec.ID, time.Now().UTC())
}

// RevokeFamily invalidates every generation of the token's family.
func (s *RotationService) RevokeFamily(ctx context.Context, refreshToken string) error {
	fp := cryptox.FingerprintToken(refreshToken)
	rec, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Store.RefreshTokens().RevokeRefreshTokenFamily(ctx, rec.FamilyID, time.Now().UTC())
}
