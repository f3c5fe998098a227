package identity_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/food-orders/foodorders/internal/docstore"
	"github.com/food-orders/foodorders/internal/docstore/docstoretest"
	"github.com/food-orders/foodorders/internal/identity"
	"github.com/food-orders/foodorders/internal/shared"
)

type fixture struct {
	svc    *identity.Service
	store  *docstoretest.Memory
	broker *identity.Broker
	mr     *miniredis.Miniredis
	client *redis.Client
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := docstoretest.New()
	broker := identity.NewBroker(client, nil)
	svc := identity.NewService(store, client, broker, identity.Config{
		SessionTTL:  time.Hour,
		ResetSecret: []byte("reset-secret"),
		ResetTTL:    time.Minute,
		HashCost:    bcrypt.MinCost,
	})
	return fixture{svc: svc, store: store, broker: broker, mr: mr, client: client}
}

type recorder struct {
	mu     sync.Mutex
	events []*identity.Principal
}

func (r *recorder) record(p *identity.Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

func (r *recorder) snapshot() []*identity.Principal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*identity.Principal(nil), r.events...)
}

func TestCreateAccountRejectsDuplicatesAndWeakPasswords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreateAccount(ctx, " Ann@Example.com ", "secret1", "Ann")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", p.Email)
	assert.NotEmpty(t, p.ID)

	_, err = f.svc.CreateAccount(ctx, "ann@example.com", "secret2", "Ann")
	assert.ErrorIs(t, err, identity.ErrEmailTaken)

	_, err = f.svc.CreateAccount(ctx, "bob@example.com", "123", "Bob")
	assert.ErrorIs(t, err, identity.ErrWeakPassword)
	_, err = f.svc.CreateAccount(ctx, "bob@example.com", strings.Repeat("é", 40), "Bob")
	assert.ErrorIs(t, err, identity.ErrPasswordTooLong)
	assert.Equal(t, 1, f.store.Count(docstore.Credentials))

	_, err = f.svc.CreateAccount(ctx, "bob@example.com", strings.Repeat("x", identity.MaxPasswordBytes), "Bob")
	assert.NoError(t, err)
}

func TestSignInAndOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateAccount(ctx, "ann@example.com", "secret1", "Ann")
	require.NoError(t, err)

	_, err = f.svc.SignIn(ctx, "sid-1", "ann@example.com", "wrong-password")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = f.svc.SignIn(ctx, "sid-1", "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	p, err := f.svc.SignIn(ctx, "sid-1", "ANN@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", p.Email)

	current, err := f.svc.Current(ctx, "sid-1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, p.ID, current.ID)
	assert.True(t, f.mr.Exists("auth:principal:sid-1"))

	other, err := f.svc.Current(ctx, "sid-2")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, f.svc.SignOut(ctx, "sid-1"))
	require.NoError(t, f.svc.SignOut(ctx, "sid-1"))
	current, err = f.svc.Current(ctx, "sid-1")
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestOnAuthStateChangedDeliversCurrentThenChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateAccount(ctx, "ann@example.com", "secret1", "Ann")
	require.NoError(t, err)

	var rec recorder
	unsubscribe, err := f.svc.OnAuthStateChanged(ctx, "sid-1", rec.record)
	require.NoError(t, err)
	require.Len(t, rec.snapshot(), 1)
	assert.Nil(t, rec.snapshot()[0])

	_, err = f.svc.SignIn(ctx, "sid-1", "ann@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, f.svc.SignOut(ctx, "sid-1"))

	events := rec.snapshot()
	require.Len(t, events, 3)
	require.NotNil(t, events[1])
	assert.Equal(t, "ann@example.com", events[1].Email)
	assert.Nil(t, events[2])

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, f.broker.Subscribers("sid-1"))

	_, err = f.svc.SignIn(ctx, "sid-1", "ann@example.com", "secret1")
	require.NoError(t, err)
	assert.Len(t, rec.snapshot(), 3)
}

func TestOnAuthStateChangedScopedToSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, "sid-1", "ann@example.com", "secret1", "Ann")
	require.NoError(t, err)

	var rec recorder
	unsubscribe, err := f.svc.OnAuthStateChanged(ctx, "sid-2", rec.record)
	require.NoError(t, err)
	defer unsubscribe()

	_, err = f.svc.SignIn(ctx, "sid-1", "ann@example.com", "secret1")
	require.NoError(t, err)
	assert.Len(t, rec.snapshot(), 1)
}

func TestOnAuthStateChangedFailsWhenStateCannotLoad(t *testing.T) {
	f := newFixture(t)
	f.mr.SetError("boom")
	_, err := f.svc.OnAuthStateChanged(context.Background(), "sid-1", func(*identity.Principal) {})
	require.Error(t, err)
	assert.Equal(t, 0, f.broker.Subscribers("sid-1"))
}

func TestBrokerRelaysChangesBetweenProcesses(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := identity.NewBroker(f.client, nil)
	require.NoError(t, remote.Listen(ctx))
	remoteSvc := identity.NewService(f.store, f.client, remote, identity.Config{HashCost: bcrypt.MinCost})

	var rec recorder
	unsubscribe, err := remoteSvc.OnAuthStateChanged(ctx, "sid-1", rec.record)
	require.NoError(t, err)
	defer unsubscribe()

	_, err = f.svc.SignUp(ctx, "sid-1", "ann@example.com", "secret1", "Ann")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 10*time.Millisecond)
	events := rec.snapshot()
	require.NotNil(t, events[1])
	assert.Equal(t, "ann@example.com", events[1].Email)
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateAccount(ctx, "ann@example.com", "secret1", "Ann")
	require.NoError(t, err)

	_, err = f.svc.IssueResetToken(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, docstore.ErrNotFound))

	token, err := f.svc.IssueResetToken(ctx, "ann@example.com")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "123"), identity.ErrWeakPassword)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, strings.Repeat("x", 73)), identity.ErrPasswordTooLong)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token+"x", "newsecret"), identity.ErrInvalidResetToken)
	require.NoError(t, f.svc.ResetPassword(ctx, token, "newsecret"))
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "another1"), identity.ErrInvalidResetToken)

	_, err = f.svc.SignIn(ctx, "sid-1", "ann@example.com", "secret1")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = f.svc.SignIn(ctx, "sid-1", "ann@example.com", "newsecret")
	require.NoError(t, err)
}

func TestResetTokenFromOtherSecretRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateAccount(ctx, "ann@example.com", "secret1", "Ann")
	require.NoError(t, err)

	other := identity.NewService(f.store, f.client, f.broker, identity.Config{ResetSecret: []byte("other"), HashCost: bcrypt.MinCost})
	token, err := other.IssueResetToken(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "newsecret"), identity.ErrInvalidResetToken)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateAccount(ctx, "ann@example.com", "secret1", "Ann")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteAccount(ctx, "ann@example.com"))
	require.NoError(t, f.svc.DeleteAccount(ctx, "ann@example.com"))
	assert.Equal(t, 0, f.store.Count(docstore.Credentials))
}

func TestConcurrentSignInsDeliverStoredPrincipalLast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, email := range []string{"ann@example.com", "bob@example.com"} {
		_, err := f.svc.CreateAccount(ctx, email, "secret1", "")
		require.NoError(t, err)
	}

	for round := 0; round < 50; round++ {
		sid := fmt.Sprintf("sid-%d", round)
		var rec recorder
		unsubscribe, err := f.svc.OnAuthStateChanged(ctx, sid, rec.record)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for _, email := range []string{"ann@example.com", "bob@example.com"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.SignIn(ctx, sid, email, "secret1")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		unsubscribe()

		stored, err := f.svc.Current(ctx, sid)
		require.NoError(t, err)
		require.NotNil(t, stored)
		events := rec.snapshot()
		require.Len(t, events, 3)
		require.NotNil(t, events[2])
		assert.Equal(t, stored.Email, events[2].Email, "round %d", round)
	}
}
