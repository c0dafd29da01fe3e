package identity

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// PasswordHasher turns plaintext passwords into opaque one way hashes
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// TokenGenerator produces the unguessable single-use secrets the
// lifecycle hands out
type TokenGenerator interface {
	ActivationKey() (string, error)
	ResetKey() (string, error)
	Password() (string, error)
}

// AccountCache is a lookup cache keyed by LoginCacheKey/EmailCacheKey.
// Eviction is always explicit and synchronous with the mutation that
// invalidated the entry, there is no TTL at this layer.
type AccountCache interface {
	Get(ctx context.Context, key string) (*Account, bool)
	Set(ctx context.Context, key string, account *Account)
	Evict(ctx context.Context, key string)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
