package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AssetFilter narrows asset listings. Zero values mean "any".
type AssetFilter struct {
	Classification string
	AssignedTo     *uuid.UUID
	Status         AssetStatus
	// Now anchors status derivation; zero means time.Now().
	Now time.Time
}

// Assets exposes the tracked equipment inventory.
type Assets interface {
	Register(ctx context.Context, record *Asset) (*Asset, error)
	List(ctx context.Context, filter AssetFilter) ([]*Asset, error)
	RecordTest(ctx context.Context, id uuid.UUID, testedAt, nextDue time.Time) (*Asset, error)
	AttachDocument(ctx context.Context, doc *AssetDocument) error
}

type assets struct {
	repository.Repository[*Asset]
	db *bun.DB
}

var _ Assets = (*assets)(nil)

func NewAssetsRepository(db *bun.DB) Assets {
	repo := repository.NewRepository[*Asset](db, repository.ModelHandlers[*Asset]{
		NewRecord: func() *Asset { return &Asset{} },
		GetID: func(a *Asset) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Asset, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "serial_number"
		},
	})

	return &assets{
		Repository: repo,
		db:         db,
	}
}

// Register creates an asset, assigning an id when the caller did not.
func (r *assets) Register(ctx context.Context, record *Asset) (*Asset, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.Repository.Create(ctx, record)
}

// List returns assets matching the filter, documents included, ordered by
// test due date with untested gear first.
func (r *assets) List(ctx context.Context, filter AssetFilter) ([]*Asset, error) {
	var records []*Asset

	q := r.db.NewSelect().
		Model(&records).
		Relation("Documents").
		OrderExpr("?TableAlias.next_test_due ASC NULLS FIRST")

	if filter.Classification != "" {
		q.Where("?TableAlias.classification = ?", filter.Classification)
	}
	if filter.AssignedTo != nil {
		q.Where("?TableAlias.assigned_to = ?", *filter.AssignedTo)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	if filter.Status == "" {
		return records, nil
	}

	// Status is derived from the due date, not stored, so it filters
	// in-process.
	now := filter.Now
	if now.IsZero() {
		now = time.Now()
	}

	out := records[:0]
	for _, record := range records {
		if record.Status(now) == filter.Status {
			out = append(out, record)
		}
	}
	return out, nil
}

// RecordTest stamps a completed dielectric test and its follow-up date.
func (r *assets) RecordTest(ctx context.Context, id uuid.UUID, testedAt, nextDue time.Time) (*Asset, error) {
	record := &Asset{
		ID:           id,
		LastTestedAt: &testedAt,
		NextTestDue:  &nextDue,
	}
	return r.Repository.Update(ctx, record, repository.UpdateByID(id.String()))
}

// AttachDocument links a certificate or photo to an asset.
func (r *assets) AttachDocument(ctx context.Context, doc *AssetDocument) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	_, err := r.db.NewInsert().Model(doc).Exec(ctx)
	return err
}
