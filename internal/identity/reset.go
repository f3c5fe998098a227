package identity

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/food-orders/foodorders/internal/docstore"
)

const resetAudience = "password-reset"

type resetClaims struct {
	Fingerprint string `json:"fp"`
	jwt.RegisteredClaims
}

// IssueResetToken returns a signed password reset token for email. The token
// is bound to the current password hash so it stops working once used.
func (s *Service) IssueResetToken(ctx context.Context, email string) (string, error) {
	if len(s.cfg.ResetSecret) == 0 {
		return "", errors.New("identity: reset secret not configured")
	}
	id, cred, err := s.findByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := resetClaims{
		Fingerprint: fingerprint(cred.PasswordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id,
			Audience:  jwt.ClaimStrings{resetAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.ResetTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.ResetSecret)
	if err != nil {
		return "", fmt.Errorf("identity: sign reset token: %w", err)
	}
	return token, nil
}

// ResetPassword replaces the password of the account named by token.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if err := checkPassword(password); err != nil {
		return err
	}
	var claims resetClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.cfg.ResetSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(resetAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return ErrInvalidResetToken
	}

	rec, err := s.store.Get(ctx, docstore.Credentials, claims.Subject)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	var cred credential
	if err := rec.Decode(&cred); err != nil {
		return err
	}
	if fingerprint(cred.PasswordHash) != claims.Fingerprint {
		return ErrInvalidResetToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.HashCost)
	if err != nil {
		return fmt.Errorf("identity: hash password: %w", err)
	}
	return s.store.Update(ctx, docstore.Credentials, claims.Subject, map[string]any{"passwordHash": string(hash)})
}

func fingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return base64.RawURLEncoding.EncodeToString(sum[:12])
}
