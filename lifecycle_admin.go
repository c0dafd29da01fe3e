package identity

import (
	"context"
	"database/sql"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

var readOnlyTx = &sql.TxOptions{ReadOnly: true}

// CreateAccount is the admin creation path. The account starts
// activated with a generated throwaway password that is never returned;
// a reset key is issued instead so the user claims a real credential
// through the reset flow. Unknown authorities are dropped.
func (l *Lifecycle) CreateAccount(ctx context.Context, input AccountInput) (*Account, error) {
	if err := input.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid account input")
	}

	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	var account *Account
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		password, err := l.tokens.Password()
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate password")
		}

		hash, err := l.hasher.HashPassword(password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash generated password")
		}

		resetKey, err := l.tokens.ResetKey()
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate reset key")
		}

		langKey := input.LangKey
		if langKey == "" {
			langKey = DefaultLanguage
		}

		now := time.Now()
		account = &Account{
			Login:        strings.ToLower(input.Login),
			Email:        strings.ToLower(input.Email),
			FirstName:    input.FirstName,
			LastName:     input.LastName,
			ImageURL:     input.ImageURL,
			LangKey:      langKey,
			PasswordHash: hash,
			Activated:    true,
			ResetKey:     resetKey,
			ResetDate:    &now,
		}

		roles, err := l.resolveAuthoritiesTx(ctx, tx, input.Authorities)
		if err != nil {
			return err
		}
		account.Authorities = roles

		created, err := l.repo.Accounts().CreateTx(ctx, tx, account)
		if err != nil {
			return conflictOrWrap(err, "could not create account")
		}

		account = created
		return nil
	})

	if err != nil {
		return nil, normalizeError(err, "account creation failed")
	}

	l.evictAccounts(ctx, account)
	l.dispatch(NotificationCreation, account)

	l.logger.Debug("created information for account: %s", account.Login)
	return account, nil
}

// UpdateAccount is the admin update path: every mutable field is
// applied, the authority set is replaced wholesale with the filtered
// input set, and both the pre and post image cache keys are evicted.
func (l *Lifecycle) UpdateAccount(ctx context.Context, input AccountInput) (*Account, error) {
	if err := input.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid account input")
	}

	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	var account *Account
	var preImage Account

	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = l.repo.Accounts().FindByIDTx(ctx, tx, input.ID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account")
		}

		preImage = *account

		account.Login = strings.ToLower(input.Login)
		account.FirstName = input.FirstName
		account.LastName = input.LastName
		account.ImageURL = input.ImageURL
		account.Activated = input.Activated
		account.LangKey = input.LangKey

		columns := []string{"login", "first_name", "last_name", "image_url", "activated", "lang_key"}
		if input.Email != "" {
			account.Email = strings.ToLower(input.Email)
			columns = append(columns, "email")
		}

		if err := l.repo.Accounts().UpdateColumnsTx(ctx, tx, account, columns...); err != nil {
			return conflictOrWrap(err, "could not update account")
		}

		roles, err := l.resolveAuthoritiesTx(ctx, tx, input.Authorities)
		if err != nil {
			return err
		}

		if err := l.repo.Accounts().ReplaceAuthoritiesTx(ctx, tx, account, roles); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to replace authorities")
		}

		return nil
	})

	if err != nil {
		return nil, normalizeError(err, "account update failed")
	}

	l.evictAccounts(ctx, &preImage, account)
	l.logger.Debug("changed information for account: %s", account.Login)
	return account, nil
}

// UpdateProfile is the self-service path, restricted to profile
// fields. It silently no-ops when the login resolves to no account, a
// stale session is not an error here.
func (l *Lifecycle) UpdateProfile(ctx context.Context, login string, input ProfileInput) error {
	if err := input.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile input")
	}

	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	var account *Account
	var preImage Account

	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = l.repo.Accounts().FindByLoginTx(ctx, tx, login)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				account = nil
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account")
		}

		preImage = *account

		account.FirstName = input.FirstName
		account.LastName = input.LastName
		account.LangKey = input.LangKey
		account.ImageURL = input.ImageURL

		columns := []string{"first_name", "last_name", "lang_key", "image_url"}
		if input.Email != "" {
			account.Email = strings.ToLower(input.Email)
			columns = append(columns, "email")
		}

		if err := l.repo.Accounts().UpdateColumnsTx(ctx, tx, account, columns...); err != nil {
			return conflictOrWrap(err, "could not update profile")
		}

		return nil
	})

	if err != nil {
		return normalizeError(err, "profile update failed")
	}

	if account == nil {
		l.logger.Debug("profile update for unknown login: %s", login)
		return nil
	}

	l.evictAccounts(ctx, &preImage, account)
	l.logger.Debug("changed information for account: %s", account.Login)
	return nil
}

// DeleteAccount removes the account behind login. Unknown logins are
// a no-op, delete is idempotent end to end.
func (l *Lifecycle) DeleteAccount(ctx context.Context, login string) error {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	var account *Account
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = l.repo.Accounts().FindByLoginTx(ctx, tx, login)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				account = nil
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account")
		}

		if err := l.repo.Accounts().DeleteTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete account")
		}

		return nil
	})

	if err != nil {
		return normalizeError(err, "account deletion failed")
	}

	if account == nil {
		return nil
	}

	l.evictAccounts(ctx, account)
	l.logger.Debug("deleted account: %s", account.Login)
	return nil
}

// PurgeStaleAccounts deletes unactivated accounts whose activation key
// was never consumed within the retention period. Returns how many
// records were removed.
func (l *Lifecycle) PurgeStaleAccounts(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	var purged []*Account
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		olderThan := time.Now().Add(-l.staleRetention)

		stale, err := l.repo.Accounts().FindStaleUnactivatedTx(ctx, tx, olderThan)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list stale accounts")
		}

		for _, account := range stale {
			if err := l.repo.Accounts().DeleteTx(ctx, tx, account); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete stale account")
			}
			l.logger.Debug("deleting not activated account: %s", account.Login)
			purged = append(purged, account)
		}

		return nil
	})

	if err != nil {
		return 0, normalizeError(err, "stale account purge failed")
	}

	l.evictAccounts(ctx, purged...)
	return len(purged), nil
}

// GetAllManaged lists accounts for administration
func (l *Lifecycle) GetAllManaged(ctx context.Context, opts ListOptions) ([]*Account, error) {
	return l.list(ctx, opts)
}

// GetAllPublic lists activated accounts only
func (l *Lifecycle) GetAllPublic(ctx context.Context, opts ListOptions) ([]*Account, error) {
	opts.OnlyActivated = true
	return l.list(ctx, opts)
}

func (l *Lifecycle) list(ctx context.Context, opts ListOptions) ([]*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	var records []*Account
	err := l.repo.RunInTx(ctx, readOnlyTx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		records, err = l.repo.Accounts().ListTx(ctx, tx, opts)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list accounts")
		}
		return nil
	})

	if err != nil {
		return nil, normalizeError(err, "account listing failed")
	}

	return records, nil
}

// CatalogAuthorities returns the identifiers of every role in the catalog
func (l *Lifecycle) CatalogAuthorities(ctx context.Context) ([]string, error) {
	roles, err := l.repo.Authorities().List(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list authorities")
	}

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names, nil
}

// resolveAuthoritiesTx maps role identifiers to catalog entries.
// Unknown identifiers are dropped, not stored and not an error.
func (l *Lifecycle) resolveAuthoritiesTx(ctx context.Context, tx bun.Tx, names []string) ([]*Authority, error) {
	seen := make(map[string]bool, len(names))
	roles := make([]*Authority, 0, len(names))

	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		role, err := l.repo.Authorities().FindTx(ctx, tx, name)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				l.logger.Debug("dropping unknown authority: %s", name)
				continue
			}
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve authority")
		}

		roles = append(roles, role)
	}

	return roles, nil
}
