package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Accounts() Accounts
	Authorities() Authorities
}

type mngr struct {
	db          *bun.DB
	accounts    Accounts
	authorities Authorities
}

// NewRepositoryManager wires the account and authority repositories
// over a shared bun handle and registers the m2m join model.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	db.RegisterModel((*AccountAuthority)(nil))

	return &mngr{
		db:          db,
		accounts:    NewAccountsRepository(db),
		authorities: NewAuthoritiesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.authorities == nil {
		return errors.New("repository authorities should be initialized")
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

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) Authorities() Authorities {
	return m.authorities
}

// CreateSchema creates the backing tables if missing. Intended for
// tests and local bootstrap, production schemas belong to migrations.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*Account)(nil),
		(*Authority)(nil),
		(*AccountAuthority)(nil),
	}

	for _, model := range models {
		_, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	return nil
}
