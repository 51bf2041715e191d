package repository

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	authstate "github.com/safeguard70e/go-authstate"
	"github.com/uptrace/bun"
)

// Profiles exposes the profile rows behind remote identities.
type Profiles interface {
	repository.Repository[*Profile]

	GetByUserID(ctx context.Context, remoteUserID string) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
}

type profiles struct {
	repository.Repository[*Profile]
	db *bun.DB
}

var _ Profiles = (*profiles)(nil)

func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &profiles{
		Repository: repo,
		db:         db,
	}
}

func (r *profiles) GetByUserID(ctx context.Context, remoteUserID string) (*Profile, error) {
	id, err := uuid.Parse(remoteUserID)
	if err != nil {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"user_id": remoteUserID,
			})
	}

	record := &Profile{}
	err = r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": remoteUserID,
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *profiles) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	record := &Profile{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

// ProfileSource adapts the repository to the identity provider's profile
// lookup seam, so deployments that own the profiles table skip the extra
// HTTP round trip.
type ProfileSource struct {
	profiles Profiles
}

func NewProfileSource(p Profiles) *ProfileSource {
	return &ProfileSource{profiles: p}
}

// FetchProfile implements httpidp.ProfileSource.
func (s *ProfileSource) FetchProfile(ctx context.Context, remoteUserID string) (*authstate.Profile, error) {
	record, err := s.profiles.GetByUserID(ctx, remoteUserID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			clone := authstate.ErrProfileNotFound.Clone()
			clone.Source = err
			return nil, clone.WithMetadata(map[string]any{
				"user_id": remoteUserID,
			})
		}
		return nil, err
	}

	return record.AuthProfile(), nil
}
