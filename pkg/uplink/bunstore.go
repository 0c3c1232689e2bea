package uplink

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/db/models"
	"github.com/uptrace/bun"
)

// BunStore implements Store on Postgres via bun.
type BunStore struct {
	db *bun.DB
}

// NewBunStore creates a Store backed by the given database.
func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// Get returns the link for token.
func (s *BunStore) Get(ctx context.Context, token string) (*Link, error) {
	var row models.UploadLink
	err := s.db.NewSelect().
		Model(&row).
		Where("token = ?", token).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromModel(&row), nil
}

// RecordUse check-and-increments in a single guarded UPDATE, so two racing
// calls against a nearly-exhausted link cannot both pass a stale read.
func (s *BunStore) RecordUse(ctx context.Context, token string, now time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*models.UploadLink)(nil)).
		Set("used_count = used_count + 1").
		Set("updated_at = current_timestamp").
		Where("token = ?", token).
		Where("is_active").
		Where("expires_at > ?", now).
		Where("(max_uses IS NULL OR used_count < max_uses)").
		Exec(ctx)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}

	// The guarded update matched nothing; re-read to name the rejection.
	link, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	if err := link.Usable(now); err != nil {
		return err
	}
	// Raced with a concurrent use that exhausted the link between the
	// update and the re-read.
	return ErrExhausted
}

// Create persists a new link.
func (s *BunStore) Create(ctx context.Context, link *Link) error {
	row := &models.UploadLink{
		Token:      link.Token,
		ProjectRef: link.ProjectRef,
		ClientRef:  link.ClientRef,
		ExpiresAt:  link.ExpiresAt,
		MaxUses:    link.MaxUses,
		UsedCount:  link.UsedCount,
		IsActive:   link.IsActive,
	}
	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	return err
}

// Deactivate marks a link inactive.
func (s *BunStore) Deactivate(ctx context.Context, token string) error {
	res, err := s.db.NewUpdate().
		Model((*models.UploadLink)(nil)).
		Set("is_active = FALSE").
		Set("updated_at = current_timestamp").
		Where("token = ?", token).
		Exec(ctx)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all links, newest first.
func (s *BunStore) List(ctx context.Context) ([]*Link, error) {
	var rows []models.UploadLink
	err := s.db.NewSelect().
		Model(&rows).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	links := make([]*Link, 0, len(rows))
	for i := range rows {
		links = append(links, fromModel(&rows[i]))
	}
	return links, nil
}

func fromModel(row *models.UploadLink) *Link {
	return &Link{
		Token:      row.Token,
		ProjectRef: row.ProjectRef,
		ClientRef:  row.ClientRef,
		ExpiresAt:  row.ExpiresAt,
		MaxUses:    row.MaxUses,
		UsedCount:  row.UsedCount,
		IsActive:   row.IsActive,
		CreatedAt:  row.CreatedAt,
	}
}

// Ensure BunStore implements Store.
var _ Store = (*BunStore)(nil)
