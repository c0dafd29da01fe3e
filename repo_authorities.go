package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Authorities is the fixed, externally seeded role catalog
type Authorities interface {
	Find(ctx context.Context, name AuthorityName) (*Authority, error)
	FindTx(ctx context.Context, tx bun.IDB, name AuthorityName) (*Authority, error)
	List(ctx context.Context) ([]*Authority, error)
	ListTx(ctx context.Context, tx bun.IDB) ([]*Authority, error)
	Seed(ctx context.Context, names ...AuthorityName) error
}

type authorities struct {
	db *bun.DB
}

var _ Authorities = (*authorities)(nil)

// NewAuthoritiesRepository builds the bun-backed role catalog. The
// catalog keys on the role name, so it sits outside the uuid-keyed
// generic repository plumbing.
func NewAuthoritiesRepository(db *bun.DB) Authorities {
	return &authorities{db: db}
}

func (r *authorities) Find(ctx context.Context, name AuthorityName) (*Authority, error) {
	return r.FindTx(ctx, r.db, name)
}

func (r *authorities) FindTx(ctx context.Context, tx bun.IDB, name AuthorityName) (*Authority, error) {
	record := &Authority{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (r *authorities) List(ctx context.Context) ([]*Authority, error) {
	return r.ListTx(ctx, r.db)
}

func (r *authorities) ListTx(ctx context.Context, tx bun.IDB) ([]*Authority, error) {
	var records []*Authority
	err := tx.NewSelect().
		Model(&records).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Seed inserts the given roles, skipping ones already present
func (r *authorities) Seed(ctx context.Context, names ...AuthorityName) error {
	if len(names) == 0 {
		return nil
	}

	records := make([]*Authority, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		records = append(records, &Authority{Name: name})
	}

	_, err := r.db.NewInsert().
		Model(&records).
		Ignore().
		Exec(ctx)
	return err
}
