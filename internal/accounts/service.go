// Package accounts handles customer accounts: registration, sign-in and
// sign-out, password resets and the profile shown on the account page.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/food-orders/foodorders/internal/docstore"
	"github.com/food-orders/foodorders/internal/identity"
	"github.com/food-orders/foodorders/internal/routes"
	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/jobs"
)

// Identity is the part of the auth service accounts relies on.
type Identity interface {
	CreateAccount(ctx context.Context, email, password, displayName string) (identity.Principal, error)
	DeleteAccount(ctx context.Context, email string) error
	SignIn(ctx context.Context, sid, email, password string) (identity.Principal, error)
	SignOut(ctx context.Context, sid string) error
	IssueResetToken(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, password string) error
}

// Mail queues outgoing email.
type Mail interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// Service implements account operations.
type Service struct {
	store    docstore.Store
	identity Identity
	mail     Mail
	baseURL  string
	logger   *slog.Logger
}

// NewService constructs a Service. baseURL prefixes links sent by email.
func NewService(store docstore.Store, id Identity, mail Mail, baseURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, identity: id, mail: mail, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// Register creates the credentials and the customer document, then signs
// the browser session in. The document exists before the sign-in is
// announced so role resolution finds it.
func (s *Service) Register(ctx context.Context, sid string, in RegisterInput) (User, error) {
	email := identity.NormalizeEmail(in.Email)
	taken, err := docstore.Exists(ctx, s.store, docstore.Where(docstore.Restaurants, docstore.Eq("email", email)))
	if err != nil {
		return User{}, fmt.Errorf("accounts: check email: %w", err)
	}
	if taken {
		return User{}, ErrEmailInUse
	}

	principal, err := s.identity.CreateAccount(ctx, email, in.Password, in.Name)
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return User{}, ErrEmailInUse
		}
		return User{}, err
	}

	user := User{ID: principal.ID, Name: strings.TrimSpace(in.Name), Email: email}
	if err := s.store.Set(ctx, docstore.Users, user.ID, user); err != nil {
		if delErr := s.identity.DeleteAccount(ctx, email); delErr != nil {
			s.logger.Error("rollback account", slog.Any("error", delErr))
		}
		return User{}, fmt.Errorf("accounts: create user: %w", err)
	}

	if _, err := s.identity.SignIn(ctx, sid, email, in.Password); err != nil {
		return User{}, fmt.Errorf("accounts: sign in: %w", err)
	}
	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Login signs the browser session in.
func (s *Service) Login(ctx context.Context, sid string, in LoginInput) (identity.Principal, error) {
	return s.identity.SignIn(ctx, sid, in.Email, in.Password)
}

// Logout signs the browser session out.
func (s *Service) Logout(ctx context.Context, sid string) error {
	return s.identity.SignOut(ctx, sid)
}

// RequestPasswordReset mails a reset link. Unknown addresses are ignored
// so the form does not reveal which emails have an account.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if s.mail == nil {
		return ErrMailUnavailable
	}
	email = identity.NormalizeEmail(email)
	token, err := s.identity.IssueResetToken(ctx, email)
	if errors.Is(err, docstore.ErrNotFound) {
		s.logger.Info("password reset for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("accounts: issue reset token: %w", err)
	}
	link := s.baseURL + routes.Path(routes.ResetPassword) + "?token=" + url.QueryEscape(token)
	_, err = s.mail.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      email,
		Subject: "Reset your Food Orders password",
		Body:    "Follow this link to choose a new password:\n\n" + link + "\n\nIf you did not ask for a new password you can ignore this email.",
	})
	if err != nil {
		return fmt.Errorf("accounts: enqueue reset mail: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	return s.identity.ResetPassword(ctx, token, password)
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	rec, err := s.store.Get(ctx, docstore.Users, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return User{}, shared.ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return decode(rec)
}

// ByEmail loads the user with email.
func (s *Service) ByEmail(ctx context.Context, email string) (User, error) {
	records, err := s.store.Find(ctx, docstore.Where(docstore.Users, docstore.Eq("email", identity.NormalizeEmail(email))))
	if err != nil {
		return User{}, fmt.Errorf("accounts: by email: %w", err)
	}
	if len(records) == 0 {
		return User{}, shared.ErrNotFound
	}
	return decode(records[0])
}

// UpdateName changes the display name of a user.
func (s *Service) UpdateName(ctx context.Context, id, name string) error {
	return s.update(ctx, id, map[string]any{"name": strings.TrimSpace(name)})
}

// LinkAmazon stores the Amazon profile on the user.
func (s *Service) LinkAmazon(ctx context.Context, id string, profile Amazon) error {
	if err := s.update(ctx, id, map[string]any{"amazon": profile}); err != nil {
		return err
	}
	s.logger.Info("amazon account linked", slog.String("user_id", id))
	return nil
}

// UnlinkAmazon clears the Amazon profile.
func (s *Service) UnlinkAmazon(ctx context.Context, id string) error {
	return s.update(ctx, id, map[string]any{"amazon": Amazon{}})
}

func (s *Service) update(ctx context.Context, id string, fields map[string]any) error {
	err := s.store.Update(ctx, docstore.Users, id, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return shared.ErrNotFound
	}
	return err
}

func decode(rec docstore.Record) (User, error) {
	var u User
	if err := rec.Decode(&u); err != nil {
		return User{}, err
	}
	u.ID = rec.ID
	return u, nil
}
