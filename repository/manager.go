package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Manager exposes all repositories behind one seam.
type Manager interface {
	repository.Validator
	repository.TransactionManager
	Profiles() Profiles
	Assets() Assets
}

type mngr struct {
	db       *bun.DB
	profiles Profiles
	assets   Assets
}

func NewManager(db *bun.DB) Manager {
	return &mngr{
		db:       db,
		profiles: NewProfilesRepository(db),
		assets:   NewAssetsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.assets == nil {
		return errors.New("repository assets should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Profiles() Profiles {
	return m.profiles
}

func (m mngr) Assets() Assets {
	return m.assets
}
