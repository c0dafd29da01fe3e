package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuthorityName identifies a role in the catalog
type AuthorityName = string

const (
	// AuthorityUser is the base role granted on self registration
	AuthorityUser AuthorityName = "ROLE_USER"
	// AuthorityAdmin is the administrative role
	AuthorityAdmin AuthorityName = "ROLE_ADMIN"
)

// DefaultLanguage is assigned when an admin creates an account
// without a language key
const DefaultLanguage = "en"

// Account is the persisted user record
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Login         string       `bun:"login,notnull,unique" json:"login,omitempty"`
	Email         string       `bun:"email,unique,nullzero" json:"email,omitempty"`
	FirstName     string       `bun:"first_name" json:"first_name,omitempty"`
	LastName      string       `bun:"last_name" json:"last_name,omitempty"`
	ImageURL      string       `bun:"image_url" json:"image_url,omitempty"`
	LangKey       string       `bun:"lang_key" json:"lang_key,omitempty"`
	PasswordHash  string       `bun:"password_hash" json:"-"`
	Activated     bool         `bun:"activated" json:"activated"`
	ActivationKey string       `bun:"activation_key,nullzero" json:"-"`
	ResetKey      string       `bun:"reset_key,nullzero" json:"-"`
	ResetDate     *time.Time   `bun:"reset_date,nullzero" json:"-"`
	Authorities   []*Authority `bun:"m2m:account_authorities,join:Account=Authority" json:"authorities,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasAuthority reports whether the account carries the given role
func (a *Account) HasAuthority(name AuthorityName) bool {
	for _, auth := range a.Authorities {
		if auth != nil && auth.Name == name {
			return true
		}
	}
	return false
}

// AuthorityNames returns the catalog identifiers attached to the account
func (a *Account) AuthorityNames() []string {
	names := make([]string, 0, len(a.Authorities))
	for _, auth := range a.Authorities {
		if auth != nil {
			names = append(names, auth.Name)
		}
	}
	return names
}

// Authority is a role in the externally seeded catalog
type Authority struct {
	bun.BaseModel `bun:"table:authorities,alias:ath"`
	Name          AuthorityName `bun:"name,pk" json:"name"`
}

// AccountAuthority is the accounts to authorities join record
type AccountAuthority struct {
	bun.BaseModel `bun:"table:account_authorities,alias:acath"`
	AccountID     uuid.UUID  `bun:"account_id,pk,type:uuid" json:"account_id"`
	Account       *Account   `bun:"rel:belongs-to,join:account_id=id" json:"-"`
	AuthorityName string     `bun:"authority_name,pk" json:"authority_name"`
	Authority     *Authority `bun:"rel:belongs-to,join:authority_name=name" json:"-"`
}
