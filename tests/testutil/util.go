package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/auth"
)

// ErrInjected is returned by a FailingGateway for the calls it was told to fail.
var ErrInjected = errors.New("injected gateway failure")

// NewValidator returns a validator with the core and account validators registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	auth.InitValidators(validate, translator, false)
	return validate
}

// CreateUser stores an active account with its profile straight through the gateway.
func CreateUser(t *testing.T, gw core.Gateway, email, pwd, role string, names ...string) auth.Identity {
	t.Helper()
	tstamp := time.Now().UTC()
	usr := auth.User{
		Email:     email,
		IsActive:  true,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	if err := gw.Insert(context.Background(), core.CollUsers, &usr); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}

	prof := auth.Profile{ID: usr.ID, Role: role, CreatedAt: tstamp, UpdatedAt: tstamp}
	if len(names) > 0 {
		prof.FirstName = names[0]
	}
	if len(names) > 1 {
		prof.LastName = names[1]
	}
	if err := gw.Insert(context.Background(), core.CollProfiles, &prof); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return auth.Identity{User: usr, Profile: prof}
}

// MustInsert inserts every record or fails the test.
func MustInsert(t *testing.T, gw core.Gateway, coll core.Collection, recs ...interface{}) {
	t.Helper()
	for _, rec := range recs {
		if err := gw.Insert(context.Background(), coll, rec); err != nil {
			t.Fatalf("inserting into %s: %v", coll, err)
		}
	}
}

// FailingGateway wraps a Gateway and fails selected calls with ErrInjected. It records every call as "op:collection".
type FailingGateway struct {
	core.Gateway

	mutex    sync.Mutex
	failures map[string]int
	calls    []string
}

var _ core.Gateway = (*FailingGateway)(nil)

func NewFailingGateway(gw core.Gateway) *FailingGateway {
	return &FailingGateway{Gateway: gw, failures: make(map[string]int)}
}

// Fail makes the next `times` calls of op ("insert", "get", "select", "update" or "delete") on coll fail.
// A negative times fails them until Reset.
func (f *FailingGateway) Fail(op string, coll core.Collection, times int) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.failures[op+":"+string(coll)] = times
}

// Reset clears every pending failure.
func (f *FailingGateway) Reset() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.failures = make(map[string]int)
}

// Calls returns the calls seen so far, in order.
func (f *FailingGateway) Calls() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FailingGateway) check(op string, coll core.Collection) error {
	key := op + ":" + string(coll)

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.calls = append(f.calls, key)
	n, ok := f.failures[key]
	if !ok || n == 0 {
		return nil
	}
	if n > 0 {
		f.failures[key] = n - 1
	}
	return errors.Wrap(ErrInjected, key)
}

func (f *FailingGateway) Insert(ctx context.Context, coll core.Collection, rec interface{}) error {
	if err := f.check("insert", coll); err != nil {
		return err
	}
	return f.Gateway.Insert(ctx, coll, rec)
}

func (f *FailingGateway) Get(ctx context.Context, coll core.Collection, dest interface{}, filter core.Filter) error {
	if err := f.check("get", coll); err != nil {
		return err
	}
	return f.Gateway.Get(ctx, coll, dest, filter)
}

func (f *FailingGateway) Select(ctx context.Context, coll core.Collection, dest interface{}, filter core.Filter, ordering ...core.DBOrdering) error {
	if err := f.check("select", coll); err != nil {
		return err
	}
	return f.Gateway.Select(ctx, coll, dest, filter, ordering...)
}

func (f *FailingGateway) Update(ctx context.Context, coll core.Collection, id string, patch core.Patch) error {
	if err := f.check("update", coll); err != nil {
		return err
	}
	return f.Gateway.Update(ctx, coll, id, patch)
}

func (f *FailingGateway) Delete(ctx context.Context, coll core.Collection, filter core.Filter) (int64, error) {
	if err := f.check("delete", coll); err != nil {
		return 0, err
	}
	return f.Gateway.Delete(ctx, coll, filter)
}

// LogEntry is a message recorded by a Logger.
type LogEntry struct {
	Level string
	Msg   string
}

// Logger is a core.Logger that records messages instead of printing them.
type Logger struct {
	mutex   sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.entries = append(l.entries, LogEntry{level, msg})
}

func (l *Logger) Entries() []LogEntry {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Count returns how many messages were logged at level.
func (l *Logger) Count(level string) int {
	n := 0
	for _, e := range l.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("debug", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("info", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("warn", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("error", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { panic(fmt.Sprintf("fatal: %s", msg)) }

// Mailer is a core.EmailService that keeps the messages it is given.
type Mailer struct {
	mutex sync.Mutex
	sent  []core.EmailMessage
}

var _ core.EmailService = (*Mailer)(nil)

func (m *Mailer) SendMessages(messages ...*core.EmailMessage) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, msg := range messages {
		m.sent = append(m.sent, *msg)
	}
}

func (m *Mailer) Sent() []core.EmailMessage {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]core.EmailMessage(nil), m.sent...)
}
