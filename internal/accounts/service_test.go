package accounts_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/food-orders/foodorders/internal/accounts"
	"github.com/food-orders/foodorders/internal/docstore"
	"github.com/food-orders/foodorders/internal/docstore/docstoretest"
	"github.com/food-orders/foodorders/internal/identity"
	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/jobs"
)

type fakeMail struct {
	sent []jobs.SendEmailPayload
	err  error
}

func (m *fakeMail) EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, payload)
	return &asynq.TaskInfo{Type: jobs.TaskTypeSendEmail}, nil
}

type fixture struct {
	svc   *accounts.Service
	ids   *identity.Service
	store *docstoretest.Memory
	mail  *fakeMail
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := docstoretest.New()
	ids := identity.NewService(store, client, identity.NewBroker(client, nil), identity.Config{
		SessionTTL:  time.Hour,
		ResetSecret: []byte("reset-secret"),
		ResetTTL:    time.Minute,
		HashCost:    bcrypt.MinCost,
	})
	mail := &fakeMail{}
	svc := accounts.NewService(store, ids, mail, "https://food.example/", nil)
	return fixture{svc: svc, ids: ids, store: store, mail: mail}
}

func TestRegisterCreatesUserAndSignsIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, "sid-1", accounts.RegisterInput{Name: " Ann ", Email: "Ann@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "Ann", user.Name)
	assert.Equal(t, "ann@example.com", user.Email)

	stored, err := f.svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsAdmin)
	assert.Empty(t, stored.LinkedAlexaEmail)
	assert.False(t, stored.Amazon.Linked())

	current, err := f.ids.Current(ctx, "sid-1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, user.ID, current.ID)
}

func TestRegisterRejectsTakenEmails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.MustSet(docstore.Restaurants, "r1", map[string]any{"email": "pizza@example.com"})

	_, err := f.svc.Register(ctx, "sid", accounts.RegisterInput{Name: "P", Email: "pizza@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, accounts.ErrEmailInUse)
	assert.Zero(t, f.store.Count(docstore.Credentials))

	_, err = f.svc.Register(ctx, "sid", accounts.RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, "sid-2", accounts.RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret2"})
	assert.ErrorIs(t, err, accounts.ErrEmailInUse)
}

func TestRegisterRollsBackCredentials(t *testing.T) {
	f := newFixture(t)
	f.store.Fail(docstore.Users, errors.New("disk full"))

	_, err := f.svc.Register(context.Background(), "sid", accounts.RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.Zero(t, f.store.Count(docstore.Credentials))
}

func TestLoginAndLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "sid-1", accounts.RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "sid-2", accounts.LoginInput{Email: "ann@example.com", Password: "wrong!"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "sid-2", accounts.LoginInput{Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, "sid-2"))
	current, err := f.ids.Current(ctx, "sid-2")
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestPasswordResetByMail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "sid", accounts.RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ANN@example.com"))
	require.Len(t, f.mail.sent, 1)
	msg := f.mail.sent[0]
	assert.Equal(t, "ann@example.com", msg.To)
	assert.Contains(t, msg.Body, "https://food.example/reset-password?token=")

	token := resetToken(t, msg.Body)
	require.NoError(t, f.svc.ResetPassword(ctx, token, "brand-new"))
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "another1"), identity.ErrInvalidResetToken)

	_, err = f.svc.Login(ctx, "sid-2", accounts.LoginInput{Email: "ann@example.com", Password: "brand-new"})
	assert.NoError(t, err)
}

func TestPasswordResetForUnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "ghost@example.com"))
	assert.Empty(t, f.mail.sent)
}

func TestPasswordResetWithoutMail(t *testing.T) {
	f := newFixture(t)
	svc := accounts.NewService(f.store, f.ids, nil, "", nil)
	assert.ErrorIs(t, svc.RequestPasswordReset(context.Background(), "ann@example.com"), accounts.ErrMailUnavailable)
}

func TestProfileUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.svc.Register(ctx, "sid", accounts.RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateName(ctx, user.ID, "Annie"))
	require.NoError(t, f.svc.LinkAmazon(ctx, user.ID, accounts.Amazon{Name: "Annie A", Email: "annie@amazon.example"}))

	got, err := f.svc.ByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Annie", got.Name)
	assert.True(t, got.Amazon.Linked())
	assert.Equal(t, "annie@amazon.example", got.Amazon.Email)

	require.NoError(t, f.svc.UnlinkAmazon(ctx, user.ID))
	got, err = f.svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.Amazon{}, got.Amazon)

	assert.ErrorIs(t, f.svc.UpdateName(ctx, "missing", "x"), shared.ErrNotFound)
	_, err = f.svc.ByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func resetToken(t *testing.T, body string) string {
	t.Helper()
	_, rest, ok := strings.Cut(body, "token=")
	require.True(t, ok)
	raw, _, _ := strings.Cut(rest, "\n")
	token, err := url.QueryUnescape(raw)
	require.NoError(t, err)
	return token
}
