package accounts

import "errors"

var (
	// ErrEmailInUse indicates the email already belongs to a customer or restaurant.
	ErrEmailInUse = errors.New("accounts: email already in use")
	// ErrMailUnavailable indicates no mail queue was configured.
	ErrMailUnavailable = errors.New("accounts: mail delivery unavailable")
)

// Amazon is the Amazon profile linked to a customer account.
type Amazon struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Linked reports whether an Amazon profile is attached.
func (a Amazon) Linked() bool {
	return a.Email != ""
}

// User is a document of the users collection.
type User struct {
	ID               string `json:"-"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	LinkedAlexaEmail string `json:"linkedAlexaEmail"`
	IsAdmin          bool   `json:"isAdmin"`
	Amazon           Amazon `json:"amazon"`
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Name     string `validate:"required,max=80"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6,max=72"`
}

// LoginInput is the login form.
type LoginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// ResetInput is the password reset form.
type ResetInput struct {
	Token    string `validate:"required"`
	Password string `validate:"required,min=6,max=72"`
	Confirm  string `validate:"required,eqfield=Password"`
}
