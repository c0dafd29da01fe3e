package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// DefaultResetWindow is how long a reset key stays consumable
const DefaultResetWindow = 24 * time.Hour

// DefaultStaleRetention is how long an unactivated account survives
const DefaultStaleRetention = 72 * time.Hour

const defaultOperationTimeout = time.Second * 10

// Lifecycle orchestrates account registration, activation, password
// reset and change, admin CRUD, and the cache eviction every mutation
// owes. Each public operation runs in its own repository transaction;
// cache eviction and notification dispatch happen after commit.
type Lifecycle struct {
	repo     RepositoryManager
	cache    AccountCache
	hasher   PasswordHasher
	tokens   TokenGenerator
	notifier Notifier
	logger   Logger

	resetWindow    time.Duration
	staleRetention time.Duration
	opTimeout      time.Duration
}

// NewLifecycle returns a Lifecycle with default collaborators
func NewLifecycle(repo RepositoryManager) *Lifecycle {
	return &Lifecycle{
		repo:           repo,
		cache:          NewMemoryCache(),
		hasher:         NewBcryptHasher(DefaultBcryptCost),
		tokens:         NewTokenGenerator(),
		notifier:       NewLogNotifier(defLogger{}),
		logger:         defLogger{},
		resetWindow:    DefaultResetWindow,
		staleRetention: DefaultStaleRetention,
		opTimeout:      defaultOperationTimeout,
	}
}

// WithCache overrides the account lookup cache
func (l *Lifecycle) WithCache(cache AccountCache) *Lifecycle {
	l.cache = normalizeCache(cache)
	return l
}

// WithHasher overrides the password hasher
func (l *Lifecycle) WithHasher(hasher PasswordHasher) *Lifecycle {
	if hasher != nil {
		l.hasher = hasher
	}
	return l
}

// WithTokenGenerator overrides the key generator
func (l *Lifecycle) WithTokenGenerator(tokens TokenGenerator) *Lifecycle {
	if tokens != nil {
		l.tokens = tokens
	}
	return l
}

// WithNotifier overrides the lifecycle notifier
func (l *Lifecycle) WithNotifier(notifier Notifier) *Lifecycle {
	l.notifier = normalizeNotifier(notifier)
	return l
}

// WithLogger overrides the logger
func (l *Lifecycle) WithLogger(logger Logger) *Lifecycle {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// WithResetWindow changes how long reset keys stay valid
func (l *Lifecycle) WithResetWindow(window time.Duration) *Lifecycle {
	if window > 0 {
		l.resetWindow = window
	}
	return l
}

// WithStaleRetention changes how long unactivated accounts survive
func (l *Lifecycle) WithStaleRetention(retention time.Duration) *Lifecycle {
	if retention > 0 {
		l.staleRetention = retention
	}
	return l
}

// Register creates an unactivated account with a fresh single-use
// activation key and the base user authority. Logins and emails held
// by unactivated accounts are reclaimed: the stale record is deleted
// before the new one is written. Activated holders win and the call
// fails with ErrLoginAlreadyUsed or ErrEmailAlreadyUsed.
func (l *Lifecycle) Register(ctx context.Context, input RegistrationInput) (*Account, error) {
	if err := input.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration input")
	}

	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	var account *Account
	var reclaimed []*Account

	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		login := strings.ToLower(input.Login)

		existing, err := l.repo.Accounts().FindByLoginTx(ctx, tx, login)
		if err != nil && !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check login availability")
		}
		if err == nil {
			removed, err := l.reclaimStaleTx(ctx, tx, existing)
			if err != nil {
				return err
			}
			if !removed {
				return ErrLoginAlreadyUsed
			}
			reclaimed = append(reclaimed, existing)
		}

		if input.Email != "" {
			existing, err := l.repo.Accounts().FindByEmailIgnoreCaseTx(ctx, tx, input.Email)
			if err != nil && !repository.IsRecordNotFound(err) {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
			}
			if err == nil {
				removed, err := l.reclaimStaleTx(ctx, tx, existing)
				if err != nil {
					return err
				}
				if !removed {
					return ErrEmailAlreadyUsed
				}
				reclaimed = append(reclaimed, existing)
			}
		}

		hash, err := l.hasher.HashPassword(input.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
		}

		key, err := l.tokens.ActivationKey()
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate activation key")
		}

		account = &Account{
			Login:         login,
			Email:         strings.ToLower(input.Email),
			FirstName:     input.FirstName,
			LastName:      input.LastName,
			ImageURL:      input.ImageURL,
			LangKey:       input.LangKey,
			PasswordHash:  hash,
			Activated:     false,
			ActivationKey: key,
		}

		if input.UseHashid && account.Email != "" {
			if id, err := hashid.NewUUID(account.Email); err == nil {
				account.ID = id
			}
		}

		if role, err := l.repo.Authorities().FindTx(ctx, tx, AuthorityUser); err == nil {
			account.Authorities = []*Authority{role}
		} else if !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve base authority")
		}

		created, err := l.repo.Accounts().CreateTx(ctx, tx, account)
		if err != nil {
			return conflictOrWrap(err, "could not create account")
		}

		account = created
		return nil
	})

	if err != nil {
		return nil, normalizeError(err, "account registration failed")
	}

	l.evictAccounts(ctx, reclaimed...)
	l.evictAccounts(ctx, account)
	l.dispatch(NotificationActivation, account)

	l.logger.Debug("created information for account: %s", account.Login)
	return account, nil
}

// Activate consumes an activation key. The key is cleared on success,
// so presenting it a second time reports ErrAccountNotFound.
func (l *Lifecycle) Activate(ctx context.Context, key string) (*Account, error) {
	if key == "" {
		return nil, ErrAccountNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	var account *Account
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = l.repo.Accounts().FindByActivationKeyTx(ctx, tx, key)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up activation key")
		}

		if err := l.repo.Accounts().MarkActivatedTx(ctx, tx, account.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate account")
		}

		account.Activated = true
		account.ActivationKey = ""
		return nil
	})

	if err != nil {
		return nil, normalizeError(err, "account activation failed")
	}

	l.evictAccounts(ctx, account)
	l.logger.Debug("activated account: %s", account.Login)
	return account, nil
}

// RequestPasswordReset issues a single-use reset key for the activated
// account behind the email. Unknown emails and unactivated accounts
// report ErrAccountNotFound; callers must present that outcome exactly
// like success so an email address can not be probed for existence.
func (l *Lifecycle) RequestPasswordReset(ctx context.Context, email string) (*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	var account *Account
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = l.repo.Accounts().FindByEmailIgnoreCaseTx(ctx, tx, email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up email for reset")
		}

		if !account.Activated {
			return ErrAccountNotFound
		}

		key, err := l.tokens.ResetKey()
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate reset key")
		}

		now := time.Now()
		if err := l.repo.Accounts().IssueResetKeyTx(ctx, tx, account.ID, key, now); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store reset key")
		}

		account.ResetKey = key
		account.ResetDate = &now
		return nil
	})

	if err != nil {
		if IsNotFoundError(err) {
			l.logger.Warn("password reset requested for unknown or unactivated email")
			return nil, ErrAccountNotFound
		}
		return nil, normalizeError(err, "password reset request failed")
	}

	l.evictAccounts(ctx, account)
	l.dispatch(NotificationPasswordReset, account)
	return account, nil
}

// CompletePasswordReset consumes a reset key issued within the reset
// window. Expired and unknown keys are indistinguishable, both report
// ErrAccountNotFound.
func (l *Lifecycle) CompletePasswordReset(ctx context.Context, newPassword, key string) (*Account, error) {
	if key == "" {
		return nil, ErrAccountNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	var account *Account
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = l.repo.Accounts().FindByResetKeyTx(ctx, tx, key)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up reset key")
		}

		if account.ResetDate == nil || OutsideWindow(*account.ResetDate, l.resetWindow) {
			return ErrAccountNotFound
		}

		hash, err := l.hasher.HashPassword(newPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		if err := l.repo.Accounts().ConsumeResetKeyTx(ctx, tx, account.ID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
		}

		account.PasswordHash = hash
		account.ResetKey = ""
		account.ResetDate = nil
		return nil
	})

	if err != nil {
		return nil, normalizeError(err, "password reset failed")
	}

	l.evictAccounts(ctx, account)
	l.logger.Debug("reset password for account: %s", account.Login)
	return account, nil
}

// ChangePassword verifies the current password before storing the new
// one. A mismatch reports ErrMismatchedHashAndPassword and leaves the
// account untouched. Verify and store share one transaction.
func (l *Lifecycle) ChangePassword(ctx context.Context, login, currentPassword, newPassword string) error {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	var account *Account
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = l.repo.Accounts().FindByLoginTx(ctx, tx, login)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account")
		}

		if err := l.hasher.ComparePasswordAndHash(currentPassword, account.PasswordHash); err != nil {
			return ErrMismatchedHashAndPassword
		}

		hash, err := l.hasher.HashPassword(newPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		if err := l.repo.Accounts().UpdatePasswordTx(ctx, tx, account.ID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
		}

		return nil
	})

	if err != nil {
		return normalizeError(err, "password change failed")
	}

	l.evictAccounts(ctx, account)
	l.logger.Debug("changed password for account: %s", account.Login)
	return nil
}

// GetWithAuthorities resolves an account by login, serving from the
// cache when possible. Cached entries never carry credential state.
func (l *Lifecycle) GetWithAuthorities(ctx context.Context, login string) (*Account, error) {
	if account, ok := l.cache.Get(ctx, LoginCacheKey(login)); ok {
		return account, nil
	}

	account, err := l.repo.Accounts().FindByLogin(ctx, login)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account")
	}

	l.cacheAccount(ctx, account)
	return account, nil
}

// reclaimStaleTx deletes an unactivated conflict holder so its login
// and email can be claimed again. Activated holders are left alone.
func (l *Lifecycle) reclaimStaleTx(ctx context.Context, tx bun.Tx, existing *Account) (bool, error) {
	if existing.Activated {
		return false, nil
	}

	if err := l.repo.Accounts().DeleteTx(ctx, tx, existing); err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reclaim unactivated account")
	}

	l.logger.Debug("reclaimed unactivated account: %s", existing.Login)
	return true, nil
}

func (l *Lifecycle) cacheAccount(ctx context.Context, account *Account) {
	if account == nil {
		return
	}
	l.cache.Set(ctx, LoginCacheKey(account.Login), account)
	if account.Email != "" {
		l.cache.Set(ctx, EmailCacheKey(account.Email), account)
	}
}

// evictAccounts drops the login and email cache entries for each
// account. Runs after commit so a rolled back mutation leaves the
// cache untouched.
func (l *Lifecycle) evictAccounts(ctx context.Context, accounts ...*Account) {
	for _, account := range accounts {
		if account == nil {
			continue
		}
		l.cache.Evict(ctx, LoginCacheKey(account.Login))
		if account.Email != "" {
			l.cache.Evict(ctx, EmailCacheKey(account.Email))
		}
	}
}

// dispatch hands a notification to the notifier off the request path.
// Failures are logged and dropped, never retried or surfaced.
func (l *Lifecycle) dispatch(kind NotificationKind, account *Account) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.opTimeout)
		defer cancel()

		if err := l.notifier.Notify(ctx, kind, account); err != nil {
			l.logger.Warn("notifier error for %s notification: %v", kind, err)
		}
	}()
}

// conflictOrWrap maps storage level uniqueness violations onto the
// same conflict errors the advisory pre-checks produce
func conflictOrWrap(err error, msg string) error {
	if uniqueViolation(err, "login") {
		return ErrLoginAlreadyUsed
	}
	if uniqueViolation(err, "email") {
		return ErrEmailAlreadyUsed
	}
	return goerrors.Wrap(err, goerrors.CategoryConflict, msg)
}

// normalizeError passes domain sentinels through untouched and wraps
// everything else the way the rest of the package reports internals
func normalizeError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if IsConflictError(err) || IsNotFoundError(err) || errors.Is(err, ErrMismatchedHashAndPassword) {
		return err
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
