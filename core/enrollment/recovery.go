package enrollment

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
)

var ErrNoPendingEnrollment = errors.New("no pending enrollment")

// RecoveryStore keeps pending enrollments across the payment redirect.
// Load and LoadByReference ignore expired records and return ErrNoPendingEnrollment for them.
type RecoveryStore interface {
	Save(ctx context.Context, p PendingEnrollment) error
	Load(ctx context.Context, courseID, email string) (PendingEnrollment, error)
	// LoadByReference finds the pending enrollment whose checkout carries ref.
	LoadByReference(ctx context.Context, ref string) (PendingEnrollment, error)
	Delete(ctx context.Context, courseID, email string) error
}

// GatewayRecoveryStore keeps pending enrollments in the pending_enrollments collection.
type GatewayRecoveryStore struct {
	gw core.Gateway
}

var _ RecoveryStore = (*GatewayRecoveryStore)(nil)

func NewGatewayRecoveryStore(gw core.Gateway) *GatewayRecoveryStore {
	return &GatewayRecoveryStore{gw: gw}
}

func (s *GatewayRecoveryStore) Save(ctx context.Context, p PendingEnrollment) error {
	p.ID = PendingID(p.CourseID, p.Form.Email)
	if _, err := s.gw.Delete(ctx, core.CollPendingEnrollments, core.Filter{"id": p.ID}); err != nil {
		return err
	}
	return s.gw.Insert(ctx, core.CollPendingEnrollments, &p)
}

func (s *GatewayRecoveryStore) Load(ctx context.Context, courseID, email string) (PendingEnrollment, error) {
	return s.get(ctx, core.Filter{"id": PendingID(courseID, email), "expires_at": core.Gte(NowFunc())})
}

func (s *GatewayRecoveryStore) LoadByReference(ctx context.Context, ref string) (PendingEnrollment, error) {
	if ref == "" {
		return PendingEnrollment{}, ErrNoPendingEnrollment
	}
	return s.get(ctx, core.Filter{"reference": ref, "expires_at": core.Gte(NowFunc())})
}

func (s *GatewayRecoveryStore) get(ctx context.Context, filter core.Filter) (PendingEnrollment, error) {
	var p PendingEnrollment
	if err := s.gw.Get(ctx, core.CollPendingEnrollments, &p, filter); err != nil {
		if err == core.ErrNoRecord {
			return PendingEnrollment{}, ErrNoPendingEnrollment
		}
		return PendingEnrollment{}, err
	}
	return p, nil
}

func (s *GatewayRecoveryStore) Delete(ctx context.Context, courseID, email string) error {
	_, err := s.gw.Delete(ctx, core.CollPendingEnrollments, core.Filter{"id": PendingID(courseID, email)})
	return err
}

// PurgeExpired deletes the expired pending enrollments and returns how many went.
func (s *GatewayRecoveryStore) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.gw.Delete(ctx, core.CollPendingEnrollments, core.Filter{"expires_at": core.Lt(NowFunc())})
	if err != nil {
		return 0, errors.Wrap(err, "purging expired pending enrollments")
	}
	return n, nil
}

// MemoryRecoveryStore keeps pending enrollments in memory.
type MemoryRecoveryStore struct {
	mutex   sync.RWMutex
	pending map[string]PendingEnrollment
}

var _ RecoveryStore = (*MemoryRecoveryStore)(nil)

func NewMemoryRecoveryStore() *MemoryRecoveryStore {
	return &MemoryRecoveryStore{pending: make(map[string]PendingEnrollment)}
}

func (s *MemoryRecoveryStore) Save(_ context.Context, p PendingEnrollment) error {
	p.ID = PendingID(p.CourseID, p.Form.Email)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = NowFunc().UTC()
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pending[p.ID] = p
	return nil
}

func (s *MemoryRecoveryStore) Load(_ context.Context, courseID, email string) (PendingEnrollment, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	p, ok := s.pending[PendingID(courseID, email)]
	if !ok || p.ExpiresAt.Before(NowFunc()) {
		return PendingEnrollment{}, ErrNoPendingEnrollment
	}
	return p, nil
}

func (s *MemoryRecoveryStore) LoadByReference(_ context.Context, ref string) (PendingEnrollment, error) {
	now := NowFunc()
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, p := range s.pending {
		if ref != "" && p.Reference == ref && !p.ExpiresAt.Before(now) {
			return p, nil
		}
	}
	return PendingEnrollment{}, ErrNoPendingEnrollment
}

func (s *MemoryRecoveryStore) Delete(_ context.Context, courseID, email string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.pending, PendingID(courseID, email))
	return nil
}

// PurgeExpired deletes the expired pending enrollments and returns how many went.
func (s *MemoryRecoveryStore) PurgeExpired(_ context.Context) (int64, error) {
	now := NowFunc()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var n int64
	for id, p := range s.pending {
		if p.ExpiresAt.Before(now) {
			delete(s.pending, id)
			n++
		}
	}
	return n, nil
}

// Purger is a RecoveryStore that needs its expired records removed periodically.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 2 * time.Hour
	}
	return ttl
}
