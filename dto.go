package identity

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
)

// RegistrationInput is the payload for self-service registration
type RegistrationInput struct {
	Login     string `json:"login"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ImageURL  string `json:"image_url"`
	LangKey   string `json:"lang_key"`
	Password  string `json:"password"`
	// UseHashid derives the account id from the email so repeated
	// registrations of the same address reuse one identifier
	UseHashid bool `json:"-"`
}

func (i RegistrationInput) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Login, validation.Required, validation.Length(1, 50)),
		validation.Field(&i.Password, validation.Required, validation.Length(4, 100)),
		validation.Field(&i.Email, validation.Length(5, 254), is.Email),
		validation.Field(&i.LangKey, validation.Length(2, 10)),
	)
}

// AccountInput is the admin-facing payload for create and update
type AccountInput struct {
	ID          uuid.UUID `json:"id"`
	Login       string    `json:"login"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	ImageURL    string    `json:"image_url"`
	LangKey     string    `json:"lang_key"`
	Activated   bool      `json:"activated"`
	Authorities []string  `json:"authorities"`
}

func (i AccountInput) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Login, validation.Required, validation.Length(1, 50)),
		validation.Field(&i.Email, validation.Length(5, 254), is.Email),
		validation.Field(&i.LangKey, validation.Length(2, 10)),
	)
}

// ProfileInput is the self-service subset of mutable fields. It can
// never touch login, activation, credentials, or authorities.
type ProfileInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	LangKey   string `json:"lang_key"`
	ImageURL  string `json:"image_url"`
}

func (i ProfileInput) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Email, validation.Length(5, 254), is.Email),
		validation.Field(&i.LangKey, validation.Length(2, 10)),
	)
}
