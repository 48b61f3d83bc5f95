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
	"github.com/uptrace/bun"
)

type VerificationStore struct {
	db   *bun.DB
	repo repository.Repository[*verificationAttemptRecord]
}

func NewVerificationStore(db *bun.DB) (*VerificationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*verificationAttemptRecord](db, verificationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid verification repository wiring: %w", err)
		}
	}
	return &VerificationStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *VerificationStore) Create(ctx context.Context, in core.CreateVerificationInput) (core.VerificationAttempt, error) {
	if s == nil || s.db == nil {
		return core.VerificationAttempt{}, fmt.Errorf("sqlstore: verification store is not configured")
	}
	record := newVerificationRecord(in)
	if record.Token == "" {
		return core.VerificationAttempt{}, fmt.Errorf("sqlstore: verification token is required")
	}
	if record.PhoneNumber == "" {
		return core.VerificationAttempt{}, fmt.Errorf("sqlstore: verification phone number is required")
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.VerificationAttempt{}, err
	}
	return record.toDomain(), nil
}

func (s *VerificationStore) Get(ctx context.Context, token string) (core.VerificationAttempt, error) {
	record, err := s.findByToken(ctx, token)
	if err != nil {
		return core.VerificationAttempt{}, err
	}
	return record.toDomain(), nil
}

// Claim completes the attempt with a single conditional update so
// concurrent redemptions of one token admit exactly one winner.
func (s *VerificationStore) Claim(ctx context.Context, token string, now time.Time) (core.VerificationAttempt, error) {
	if s == nil || s.db == nil {
		return core.VerificationAttempt{}, fmt.Errorf("sqlstore: verification store is not configured")
	}
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return core.VerificationAttempt{}, core.ErrTokenNotFound
	}
	completedAt := now.UTC()

	result, err := s.db.NewUpdate().
		Model((*verificationAttemptRecord)(nil)).
		Set("status = ?", string(core.VerificationStatusCompleted)).
		Set("completed_at = ?", completedAt).
		Where("token = ?", trimmed).
		Where("status = ?", string(core.VerificationStatusPending)).
		Where("expires_at > ?", completedAt).
		Exec(ctx)
	if err != nil {
		return core.VerificationAttempt{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.VerificationAttempt{}, err
	}
	if affected == 1 {
		return s.Get(ctx, trimmed)
	}

	// Lost the race, or the token is stale; read the row to say which.
	record, err := s.findByToken(ctx, trimmed)
	if err != nil {
		return core.VerificationAttempt{}, err
	}
	switch core.VerificationStatus(record.Status) {
	case core.VerificationStatusCompleted:
		return core.VerificationAttempt{}, core.ErrTokenConsumed
	case core.VerificationStatusExpired:
		return core.VerificationAttempt{}, core.ErrTokenExpired
	default:
		if markErr := s.MarkExpired(ctx, trimmed, completedAt); markErr != nil && !errors.Is(markErr, core.ErrTokenConsumed) {
			return core.VerificationAttempt{}, markErr
		}
		return core.VerificationAttempt{}, core.ErrTokenExpired
	}
}

func (s *VerificationStore) MarkExpired(ctx context.Context, token string, now time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: verification store is not configured")
	}
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return core.ErrTokenNotFound
	}
	_, err := s.db.NewUpdate().
		Model((*verificationAttemptRecord)(nil)).
		Set("status = ?", string(core.VerificationStatusExpired)).
		Where("token = ?", trimmed).
		Where("status = ?", string(core.VerificationStatusPending)).
		Exec(ctx)
	return err
}

func (s *VerificationStore) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: verification store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*verificationAttemptRecord)(nil)).
		Set("status = ?", string(core.VerificationStatusExpired)).
		Where("status = ?", string(core.VerificationStatusPending)).
		Where("expires_at <= ?", now.UTC()).
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

func (s *VerificationStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: verification store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*verificationAttemptRecord)(nil)).
		Where("status IN (?)", bun.In([]string{
			string(core.VerificationStatusCompleted),
			string(core.VerificationStatusExpired),
		})).
		Where("created_at < ?", cutoff.UTC()).
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

func (s *VerificationStore) findByToken(ctx context.Context, token string) (*verificationAttemptRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: verification store is not configured")
	}
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, core.ErrTokenNotFound
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("token", "=", trimmed),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrTokenNotFound
		}
		return nil, err
	}
	if len(records) == 0 {
		return nil, core.ErrTokenNotFound
	}
	return records[0], nil
}

var _ core.VerificationStore = (*VerificationStore)(nil)
