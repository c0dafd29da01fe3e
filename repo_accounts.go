package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ListOptions narrows and pages account listings
type ListOptions struct {
	OnlyActivated bool
	Limit         int
	Offset        int
}

// Accounts is the repository contract the lifecycle consumes. Finders
// return repository.NewRecordNotFound errors for absent rows; callers
// check with repository.IsRecordNotFound.
type Accounts interface {
	FindByLogin(ctx context.Context, login string) (*Account, error)
	FindByLoginTx(ctx context.Context, tx bun.IDB, login string) (*Account, error)
	FindByEmailIgnoreCase(ctx context.Context, email string) (*Account, error)
	FindByEmailIgnoreCaseTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)
	FindByActivationKeyTx(ctx context.Context, tx bun.IDB, key string) (*Account, error)
	FindByResetKeyTx(ctx context.Context, tx bun.IDB, key string) (*Account, error)
	FindStaleUnactivatedTx(ctx context.Context, tx bun.IDB, olderThan time.Time) ([]*Account, error)
	ListTx(ctx context.Context, tx bun.IDB, opts ListOptions) ([]*Account, error)

	CreateTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error)
	UpdateColumnsTx(ctx context.Context, tx bun.IDB, record *Account, columns ...string) error
	MarkActivatedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	IssueResetKeyTx(ctx context.Context, tx bun.IDB, id uuid.UUID, key string, at time.Time) error
	ConsumeResetKeyTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	ReplaceAuthoritiesTx(ctx context.Context, tx bun.IDB, account *Account, authorities []*Authority) error
	DeleteTx(ctx context.Context, tx bun.IDB, account *Account) error
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var _ Accounts = (*accounts)(nil)

// NewAccountsRepository builds the bun-backed Accounts repository
func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "login"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) FindByLogin(ctx context.Context, login string) (*Account, error) {
	return a.FindByLoginTx(ctx, a.db, login)
}

func (a *accounts) FindByLoginTx(ctx context.Context, tx bun.IDB, login string) (*Account, error) {
	return a.findOneTx(ctx, tx, "lower(?TableAlias.login) = lower(?)", login)
}

func (a *accounts) FindByEmailIgnoreCase(ctx context.Context, email string) (*Account, error) {
	return a.FindByEmailIgnoreCaseTx(ctx, a.db, email)
}

func (a *accounts) FindByEmailIgnoreCaseTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	return a.findOneTx(ctx, tx, "lower(?TableAlias.email) = lower(?)", email)
}

func (a *accounts) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	return a.findOneTx(ctx, tx, "?TableAlias.id = ?", id)
}

func (a *accounts) FindByActivationKeyTx(ctx context.Context, tx bun.IDB, key string) (*Account, error) {
	return a.findOneTx(ctx, tx, "?TableAlias.activation_key = ?", key)
}

func (a *accounts) FindByResetKeyTx(ctx context.Context, tx bun.IDB, key string) (*Account, error) {
	return a.findOneTx(ctx, tx, "?TableAlias.reset_key = ?", key)
}

func (a *accounts) findOneTx(ctx context.Context, tx bun.IDB, where string, arg any) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Relation("Authorities").
		Where(where, arg).
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

func (a *accounts) FindStaleUnactivatedTx(ctx context.Context, tx bun.IDB, olderThan time.Time) ([]*Account, error) {
	var records []*Account
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.activated = ?", false).
		Where("?TableAlias.activation_key IS NOT NULL").
		Where("?TableAlias.created_at < ?", olderThan).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (a *accounts) ListTx(ctx context.Context, tx bun.IDB, opts ListOptions) ([]*Account, error) {
	var records []*Account
	q := tx.NewSelect().
		Model(&records).
		Relation("Authorities").
		Order("login ASC")

	if opts.OnlyActivated {
		q = q.Where("?TableAlias.activated = ?", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error) {
	prepareAccountDefaults(record)

	created, err := a.Repository.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, err
	}

	created.Authorities = record.Authorities
	if err := a.insertAuthoritiesTx(ctx, tx, created); err != nil {
		return nil, err
	}

	return created, nil
}

// UpdateColumnsTx persists exactly the named columns from record,
// including zero values. The generic repository update omits zero
// fields, which would make it impossible to deactivate an account or
// clear a key, so column updates are explicit here.
func (a *accounts) UpdateColumnsTx(ctx context.Context, tx bun.IDB, record *Account, columns ...string) error {
	_, err := tx.NewUpdate().
		Model(record).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return err
}

func (a *accounts) MarkActivatedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("activated = ?", true).
		Set("activation_key = NULL").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (a *accounts) IssueResetKeyTx(ctx context.Context, tx bun.IDB, id uuid.UUID, key string, at time.Time) error {
	_, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("reset_key = ?", key).
		Set("reset_date = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (a *accounts) ConsumeResetKeyTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	_, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("reset_key = NULL").
		Set("reset_date = NULL").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (a *accounts) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	_, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("password_hash = ?", passwordHash).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// ReplaceAuthoritiesTx swaps the account's authority set atomically:
// the join rows are rebuilt from the new filtered set rather than
// mutating the loaded collection in place.
func (a *accounts) ReplaceAuthoritiesTx(ctx context.Context, tx bun.IDB, account *Account, authorities []*Authority) error {
	_, err := tx.NewDelete().
		Model((*AccountAuthority)(nil)).
		Where("account_id = ?", account.ID).
		Exec(ctx)
	if err != nil {
		return err
	}

	account.Authorities = authorities
	return a.insertAuthoritiesTx(ctx, tx, account)
}

// DeleteTx removes the account and its join rows. Deleting an already
// removed row is a no-op, which keeps overlapping purge runs safe.
func (a *accounts) DeleteTx(ctx context.Context, tx bun.IDB, account *Account) error {
	_, err := tx.NewDelete().
		Model((*AccountAuthority)(nil)).
		Where("account_id = ?", account.ID).
		Exec(ctx)
	if err != nil {
		return err
	}

	_, err = tx.NewDelete().
		Model((*Account)(nil)).
		Where("id = ?", account.ID).
		Exec(ctx)
	return err
}

func (a *accounts) insertAuthoritiesTx(ctx context.Context, tx bun.IDB, account *Account) error {
	if len(account.Authorities) == 0 {
		return nil
	}

	links := make([]*AccountAuthority, 0, len(account.Authorities))
	for _, auth := range account.Authorities {
		if auth == nil {
			continue
		}
		links = append(links, &AccountAuthority{
			AccountID:     account.ID,
			AuthorityName: auth.Name,
		})
	}

	if len(links) == 0 {
		return nil
	}

	_, err := tx.NewInsert().
		Model(&links).
		Exec(ctx)
	return err
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.Login = strings.ToLower(record.Login)
	record.Email = strings.ToLower(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
