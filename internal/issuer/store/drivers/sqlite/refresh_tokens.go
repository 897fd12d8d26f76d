package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/stamp/internal/issuer/domain"
	"github.com/aussiebroadwan/stamp/internal/issuer/store"

	"github.com/google/uuid"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshTokenRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, family_id, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.FamilyID.String(), t.ExpiresAt.UTC(), t.CreatedAt.UTC(),
	)
	return err
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(
	ctx context.Context,
	hash string,
) (domain.RefreshTokenRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, family_id, expires_at, created_at, revoked_at, replaced_by
		FROM refresh_tokens
		WHERE token_hash = ?`,
		hash,
	)
	return scanRefreshToken(row)
}

// MarkRefreshTokenReplaced is the rotation compare-and-swap. The WHERE
// clause only matches a record that is still the live generation, so when
// two rotations race exactly one UPDATE reports a row affected.
func (r *refreshTokensRepo) MarkRefreshTokenReplaced(ctx context.Context, id, replacedByID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET replaced_by = ?
		WHERE id = ? AND replaced_by IS NULL AND revoked_at IS NULL`,
		replacedByID, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?
		WHERE id = ? AND revoked_at IS NULL`,
		at.UTC(), id,
	)
	return err
}

func (r *refreshTokensRepo) RevokeRefreshTokenFamily(
	ctx context.Context,
	familyID uuid.UUID,
	at time.Time,
) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?
		WHERE family_id = ? AND revoked_at IS NULL`,
		at.UTC(), familyID.String(),
	)
	return err
}

func (r *refreshTokensRepo) ListRefreshTokenFamily(
	ctx context.Context,
	familyID uuid.UUID,
) ([]domain.RefreshTokenRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, token_hash, family_id, expires_at, created_at, revoked_at, replaced_by
		FROM refresh_tokens
		WHERE family_id = ?
		ORDER BY created_at ASC, id ASC`,
		familyID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RefreshTokenRecord
	for rows.Next() {
		rec, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *refreshTokensRepo) DeleteRefreshTokensExpiredBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE expires_at < ?`,
		cutoff.UTC(),
	)
	return err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRefreshToken(row scanner) (domain.RefreshTokenRecord, error) {
	var (
		rec        domain.RefreshTokenRecord
		familyID   string
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)

	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.TokenHash, &familyID,
		&rec.ExpiresAt, &rec.CreatedAt, &revokedAt, &replacedBy,
	)
	if err != nil {
		return domain.RefreshTokenRecord{}, mapNotFound(err)
	}

	fid, err := uuid.Parse(familyID)
	if err != nil {
		return domain.RefreshTokenRecord{}, err
	}
	rec.FamilyID = fid

	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	rec.ReplacedBy = mapNullString(replacedBy)

	return rec, nil
}
