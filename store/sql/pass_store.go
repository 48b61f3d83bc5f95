package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-callpass/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type PassStore struct {
	db   *bun.DB
	repo repository.Repository[*passRecord]
}

func NewPassStore(db *bun.DB) (*PassStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*passRecord](db, passHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid pass repository wiring: %w", err)
		}
	}
	return &PassStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *PassStore) Create(ctx context.Context, in core.CreatePassInput) (core.Pass, error) {
	if s == nil || s.db == nil {
		return core.Pass{}, fmt.Errorf("sqlstore: pass store is not configured")
	}
	record := newPassRecord(in)
	if record.PhoneNumber == "" {
		return core.Pass{}, fmt.Errorf("sqlstore: pass phone number is required")
	}
	if err := core.PassScope(record.Scope).Validate(); err != nil {
		return core.Pass{}, err
	}
	record.ID = uuid.NewString()
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.Pass{}, err
	}
	return record.toDomain(), nil
}

func (s *PassStore) Get(ctx context.Context, id string) (core.Pass, error) {
	if s == nil || s.repo == nil {
		return core.Pass{}, fmt.Errorf("sqlstore: pass store is not configured")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return core.Pass{}, core.ErrPassNotFound
	}
	record, err := s.repo.GetByID(ctx, trimmed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Pass{}, core.ErrPassNotFound
		}
		return core.Pass{}, err
	}
	return record.toDomain(), nil
}

// Resolve picks the usable grant with the furthest expiry; ties go to
// the most recent grant.
func (s *PassStore) Resolve(ctx context.Context, phoneNumber string, now time.Time) (core.Pass, error) {
	if s == nil || s.repo == nil {
		return core.Pass{}, fmt.Errorf("sqlstore: pass store is not configured")
	}
	cutoff := now.UTC()
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("phone_number", "=", strings.TrimSpace(phoneNumber)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.revoked_at IS NULL").
				Where("?TableAlias.expires_at > ?", cutoff).
				Where("?TableAlias.max_uses IS NULL OR ?TableAlias.used_count < ?TableAlias.max_uses")
		}),
		repository.OrderBy("expires_at DESC"),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Pass{}, err
	}
	if len(records) == 0 {
		return core.Pass{}, core.ErrPassNotFound
	}
	return records[0].toDomain(), nil
}

func (s *PassStore) RecordUse(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: pass store is not configured")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return core.ErrPassNotFound
	}
	result, err := s.db.NewUpdate().
		Model((*passRecord)(nil)).
		Set("used_count = used_count + 1").
		Where("id = ?", trimmed).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrPassNotFound
	}
	return nil
}

func (s *PassStore) Revoke(ctx context.Context, id string, now time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: pass store is not configured")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return core.ErrPassNotFound
	}
	result, err := s.db.NewUpdate().
		Model((*passRecord)(nil)).
		Set("revoked_at = ?", now.UTC()).
		Where("id = ?", trimmed).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either missing or already revoked; revoking twice is fine.
		if _, getErr := s.Get(ctx, trimmed); getErr != nil {
			return getErr
		}
	}
	return nil
}

func (s *PassStore) ListActive(ctx context.Context, now time.Time) ([]core.Pass, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: pass store is not configured")
	}
	cutoff := now.UTC()
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.revoked_at IS NULL").
				Where("?TableAlias.expires_at > ?", cutoff).
				Where("?TableAlias.max_uses IS NULL OR ?TableAlias.used_count < ?TableAlias.max_uses")
		}),
		repository.OrderBy("phone_number ASC"),
		repository.OrderBy("expires_at DESC"),
		repository.OrderBy("created_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Pass, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *PassStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: pass store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*passRecord)(nil)).
		Where("expires_at <= ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

var _ core.PassStore = (*PassStore)(nil)
