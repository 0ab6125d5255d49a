package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	sub   string
	evt   SessionEvent
	email string
}

func TestSessionManager(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()
	mgr := NewSessionManager(svc)

	var events []recordedEvent
	record := func(sub string) SessionChangeFunc {
		return func(evt SessionEvent, sess Session) {
			events = append(events, recordedEvent{sub, evt, sess.Identity.Email()})
		}
	}
	unsubA := mgr.OnSessionChange(record("a"))
	mgr.OnSessionChange(record("b"))

	_, ok := mgr.Current()
	assert.False(t, ok)

	sess, err := mgr.SignUp(ctx, SignUpRequest{Email: "ada@example.com", Password: "secret1", FirstName: "Ada"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.AccessToken)
	assert.True(t, sess.Valid())

	cur, ok := mgr.Current()
	require.True(t, ok)
	assert.Equal(t, sess.AccessToken, cur.AccessToken)

	refreshed, err := mgr.RefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.OrigIssuedAt, refreshed.OrigIssuedAt)

	unsubA()
	unsubA() // idempotent
	mgr.SignOut()
	mgr.SignOut() // no session, no event

	_, ok = mgr.Current()
	assert.False(t, ok)

	assert.Equal(t, []recordedEvent{
		{"a", SignedIn, "ada@example.com"},
		{"b", SignedIn, "ada@example.com"},
		{"a", TokenRefreshed, "ada@example.com"},
		{"b", TokenRefreshed, "ada@example.com"},
		{"b", SignedOut, ""},
	}, events)
}

func TestSessionManager_SignIn(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()
	signUp(t, svc, "ada@example.com", "secret1", "")

	mgr := NewSessionManager(svc)
	var got []SessionEvent
	mgr.OnSessionChange(func(evt SessionEvent, _ Session) { got = append(got, evt) })

	_, err := mgr.SignIn(ctx, "ada@example.com", "wrong")
	assert.Equal(t, ErrInvalidCredentials, err)
	_, ok := mgr.Current()
	assert.False(t, ok)
	assert.Empty(t, got)

	_, err = mgr.RefreshToken(ctx)
	assert.Equal(t, ErrInvalidToken, err)

	sess, err := mgr.SignIn(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", sess.Identity.DisplayName())
	assert.Equal(t, []SessionEvent{SignedIn}, got)

	// a restored session does not notify
	other := NewSessionManager(svc)
	other.OnSessionChange(func(evt SessionEvent, _ Session) { t.Errorf("unexpected event %s", evt) })
	other.Restore(sess)
	cur, ok := other.Current()
	require.True(t, ok)
	assert.Equal(t, sess.Identity.ID(), cur.Identity.ID())
}

func TestSessionManager_independentInstances(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()
	signUp(t, svc, "ada@example.com", "secret1", "")

	m1, m2 := NewSessionManager(svc), NewSessionManager(svc)
	_, err := m1.SignIn(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)

	_, ok := m2.Current()
	assert.False(t, ok)
	m1.SignOut()
	_, ok = m1.Current()
	assert.False(t, ok)
}
