package identity_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// fakeRepositoryManager runs transaction closures inline against a
// zero bun.Tx so the repositories can be mocked underneath
type fakeRepositoryManager struct {
	accounts    *MockAccounts
	authorities *MockAuthorities
}

func newFakeRepositoryManager() *fakeRepositoryManager {
	return &fakeRepositoryManager{
		accounts:    &MockAccounts{},
		authorities: &MockAuthorities{},
	}
}

func (m *fakeRepositoryManager) Validate() error { return nil }
func (m *fakeRepositoryManager) MustValidate()   {}

func (m *fakeRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	var tx bun.Tx
	return f(ctx, tx)
}

func (m *fakeRepositoryManager) Accounts() identity.Accounts       { return m.accounts }
func (m *fakeRepositoryManager) Authorities() identity.Authorities { return m.authorities }

func (m *fakeRepositoryManager) AssertExpectations(t mock.TestingT) {
	m.accounts.AssertExpectations(t)
	m.authorities.AssertExpectations(t)
}

// MockAccounts implements identity.Accounts
type MockAccounts struct {
	mock.Mock
}

func accountResult(args mock.Arguments) (*identity.Account, error) {
	record, _ := args.Get(0).(*identity.Account)
	return record, args.Error(1)
}

func (m *MockAccounts) FindByLogin(ctx context.Context, login string) (*identity.Account, error) {
	return accountResult(m.Called(ctx, login))
}

func (m *MockAccounts) FindByLoginTx(ctx context.Context, tx bun.IDB, login string) (*identity.Account, error) {
	return accountResult(m.Called(ctx, tx, login))
}

func (m *MockAccounts) FindByEmailIgnoreCase(ctx context.Context, email string) (*identity.Account, error) {
	return accountResult(m.Called(ctx, email))
}

func (m *MockAccounts) FindByEmailIgnoreCaseTx(ctx context.Context, tx bun.IDB, email string) (*identity.Account, error) {
	return accountResult(m.Called(ctx, tx, email))
}

func (m *MockAccounts) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*identity.Account, error) {
	return accountResult(m.Called(ctx, tx, id))
}

func (m *MockAccounts) FindByActivationKeyTx(ctx context.Context, tx bun.IDB, key string) (*identity.Account, error) {
	return accountResult(m.Called(ctx, tx, key))
}

func (m *MockAccounts) FindByResetKeyTx(ctx context.Context, tx bun.IDB, key string) (*identity.Account, error) {
	return accountResult(m.Called(ctx, tx, key))
}

func (m *MockAccounts) FindStaleUnactivatedTx(ctx context.Context, tx bun.IDB, olderThan time.Time) ([]*identity.Account, error) {
	args := m.Called(ctx, tx, olderThan)
	records, _ := args.Get(0).([]*identity.Account)
	return records, args.Error(1)
}

func (m *MockAccounts) ListTx(ctx context.Context, tx bun.IDB, opts identity.ListOptions) ([]*identity.Account, error) {
	args := m.Called(ctx, tx, opts)
	records, _ := args.Get(0).([]*identity.Account)
	return records, args.Error(1)
}

func (m *MockAccounts) CreateTx(ctx context.Context, tx bun.IDB, record *identity.Account) (*identity.Account, error) {
	return accountResult(m.Called(ctx, tx, record))
}

func (m *MockAccounts) UpdateColumnsTx(ctx context.Context, tx bun.IDB, record *identity.Account, columns ...string) error {
	return m.Called(ctx, tx, record, columns).Error(0)
}

func (m *MockAccounts) MarkActivatedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	return m.Called(ctx, tx, id).Error(0)
}

func (m *MockAccounts) IssueResetKeyTx(ctx context.Context, tx bun.IDB, id uuid.UUID, key string, at time.Time) error {
	return m.Called(ctx, tx, id, key, at).Error(0)
}

func (m *MockAccounts) ConsumeResetKeyTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	return m.Called(ctx, tx, id, passwordHash).Error(0)
}

func (m *MockAccounts) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	return m.Called(ctx, tx, id, passwordHash).Error(0)
}

func (m *MockAccounts) ReplaceAuthoritiesTx(ctx context.Context, tx bun.IDB, account *identity.Account, authorities []*identity.Authority) error {
	return m.Called(ctx, tx, account, authorities).Error(0)
}

func (m *MockAccounts) DeleteTx(ctx context.Context, tx bun.IDB, account *identity.Account) error {
	return m.Called(ctx, tx, account).Error(0)
}

// MockAuthorities implements identity.Authorities
type MockAuthorities struct {
	mock.Mock
}

func authorityResult(args mock.Arguments) (*identity.Authority, error) {
	record, _ := args.Get(0).(*identity.Authority)
	return record, args.Error(1)
}

func (m *MockAuthorities) Find(ctx context.Context, name string) (*identity.Authority, error) {
	return authorityResult(m.Called(ctx, name))
}

func (m *MockAuthorities) FindTx(ctx context.Context, tx bun.IDB, name string) (*identity.Authority, error) {
	return authorityResult(m.Called(ctx, tx, name))
}

func (m *MockAuthorities) List(ctx context.Context) ([]*identity.Authority, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]*identity.Authority)
	return records, args.Error(1)
}

func (m *MockAuthorities) ListTx(ctx context.Context, tx bun.IDB) ([]*identity.Authority, error) {
	args := m.Called(ctx, tx)
	records, _ := args.Get(0).([]*identity.Authority)
	return records, args.Error(1)
}

func (m *MockAuthorities) Seed(ctx context.Context, names ...string) error {
	return m.Called(ctx, names).Error(0)
}

// stubHasher keeps lifecycle tests fast and hashes inspectable
type stubHasher struct{}

func (stubHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", identity.ErrNoEmptyString
	}
	return "hashed:" + password, nil
}

func (stubHasher) ComparePasswordAndHash(password, hash string) error {
	if "hashed:"+password != hash {
		return identity.ErrMismatchedHashAndPassword
	}
	return nil
}

// stubTokens returns deterministic keys
type stubTokens struct {
	activation string
	reset      string
	password   string
}

func (s stubTokens) ActivationKey() (string, error) { return s.activation, nil }
func (s stubTokens) ResetKey() (string, error)      { return s.reset, nil }
func (s stubTokens) Password() (string, error)      { return s.password, nil }

// recordingCache captures sets and evictions
type recordingCache struct {
	mu       sync.Mutex
	entries  map[string]*identity.Account
	evicted  []string
	setCalls []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string]*identity.Account{}}
}

func (c *recordingCache) Get(ctx context.Context, key string) (*identity.Account, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	account, ok := c.entries[key]
	return account, ok
}

func (c *recordingCache) Set(ctx context.Context, key string, account *identity.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = account
	c.setCalls = append(c.setCalls, key)
}

func (c *recordingCache) Evict(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.evicted = append(c.evicted, key)
}

func (c *recordingCache) evictedKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.evicted...)
}

// capturingNotifier records dispatches and signals on delivery so
// tests can wait for the async fan-out
type capturingNotifier struct {
	mu       sync.Mutex
	delivery chan identity.NotificationKind
}

func newCapturingNotifier() *capturingNotifier {
	return &capturingNotifier{delivery: make(chan identity.NotificationKind, 8)}
}

func (n *capturingNotifier) Notify(ctx context.Context, kind identity.NotificationKind, account *identity.Account) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivery <- kind
	return nil
}

func (n *capturingNotifier) wait(timeout time.Duration) (identity.NotificationKind, bool) {
	select {
	case kind := <-n.delivery:
		return kind, true
	case <-time.After(timeout):
		return "", false
	}
}
