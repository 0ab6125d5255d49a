package auth

import (
	"context"
	"sync"
)

// SessionEvent is emitted to OnSessionChange subscribers.
type SessionEvent string

const (
	SignedIn       SessionEvent = "signedIn"
	SignedOut      SessionEvent = "signedOut"
	TokenRefreshed SessionEvent = "tokenRefreshed"
)

// SessionChangeFunc receives session events. sess is the zero Session on SignedOut.
type SessionChangeFunc func(evt SessionEvent, sess Session)

// Authenticator is what a SessionManager needs from the account Service.
type Authenticator interface {
	SignUp(ctx context.Context, req SignUpRequest) (Identity, error)
	SignIn(ctx context.Context, email, pwd string) (Identity, error)
	IssueToken(idt Identity, origIat ...int64) (Session, error)
	RefreshSession(ctx context.Context, sess Session) (Session, error)
}

var _ Authenticator = (*Service)(nil)

// SessionManager holds the session of one client.
// It is created explicitly and passed to whoever needs it; there is no process wide session.
type SessionManager struct {
	auth Authenticator

	mutex   sync.Mutex
	session *Session
	subs    []*subscriber
}

type subscriber struct {
	fn SessionChangeFunc
}

func NewSessionManager(auth Authenticator) *SessionManager {
	return &SessionManager{auth: auth}
}

// SignUp creates the account and signs it in.
func (m *SessionManager) SignUp(ctx context.Context, req SignUpRequest) (Session, error) {
	idt, err := m.auth.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return m.start(idt)
}

func (m *SessionManager) SignIn(ctx context.Context, email, pwd string) (Session, error) {
	idt, err := m.auth.SignIn(ctx, email, pwd)
	if err != nil {
		return Session{}, err
	}
	return m.start(idt)
}

func (m *SessionManager) start(idt Identity) (Session, error) {
	sess, err := m.auth.IssueToken(idt)
	if err != nil {
		return Session{}, err
	}
	m.set(&sess, SignedIn)
	return sess, nil
}

// SignOut drops the current session. It is a no-op without one.
func (m *SessionManager) SignOut() {
	m.mutex.Lock()
	had := m.session != nil
	m.mutex.Unlock()
	if had {
		m.set(nil, SignedOut)
	}
}

// Current returns the active session, if any.
func (m *SessionManager) Current() (Session, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Restore installs a session obtained elsewhere (e.g. from a verified bearer token) without emitting events.
func (m *SessionManager) Restore(sess Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.session = &sess
}

// RefreshToken replaces the current token with a fresh one.
func (m *SessionManager) RefreshToken(ctx context.Context) (Session, error) {
	cur, ok := m.Current()
	if !ok {
		return Session{}, ErrInvalidToken
	}
	sess, err := m.auth.RefreshSession(ctx, cur)
	if err != nil {
		return Session{}, err
	}
	m.set(&sess, TokenRefreshed)
	return sess, nil
}

// OnSessionChange subscribes fn to session events. Call the returned func to unsubscribe.
func (m *SessionManager) OnSessionChange(fn SessionChangeFunc) (unsubscribe func()) {
	sub := &subscriber{fn: fn}
	m.mutex.Lock()
	m.subs = append(m.subs, sub)
	m.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			for i, s := range m.subs {
				if s == sub {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// set swaps the session and notifies subscribers outside the lock, in subscription order.
func (m *SessionManager) set(sess *Session, evt SessionEvent) {
	m.mutex.Lock()
	m.session = sess
	subs := make([]*subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mutex.Unlock()

	var payload Session
	if sess != nil {
		payload = *sess
	}
	for _, sub := range subs {
		sub.fn(evt, payload)
	}
}
