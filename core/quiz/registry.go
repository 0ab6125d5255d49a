package quiz

import (
	"context"
	"sync"
	"time"
)

// DefaultIdleTTL is how long a finished attempt stays in a Registry after its last use.
const DefaultIdleTTL = 15 * time.Minute

type attemptKey struct {
	quizID, studentID string
}

type liveEngine struct {
	eng  *Engine
	used time.Time
}

// Registry keeps the live Engine of each (quiz, student) pair so that successive requests drive the same attempt.
// Engines whose attempt is over are forgotten once idle for IdleTTL.
type Registry struct {
	ctx       context.Context // parent of every countdown
	newEngine func() (*Engine, error)

	IdleTTL time.Duration

	mutex   sync.Mutex
	engines map[attemptKey]*liveEngine
}

// NewRegistry returns a Registry whose countdowns live as long as ctx.
func NewRegistry(ctx context.Context, newEngine func() (*Engine, error)) *Registry {
	return &Registry{
		ctx:       ctx,
		newEngine: newEngine,
		IdleTTL:   DefaultIdleTTL,
		engines:   make(map[attemptKey]*liveEngine),
	}
}

// answering reports whether the attempt of eng is still being answered.
func answering(eng *Engine) bool {
	switch eng.State() {
	case StateSubmitted, StateCompleted:
		return false
	default:
		return true
	}
}

// Open returns the attempt of the pair while it is being answered. Otherwise it loads a fresh engine,
// replacing the finished one, and starts its countdown.
func (r *Registry) Open(ctx context.Context, quizID, studentID string) (*Engine, error) {
	key := attemptKey{quizID, studentID}
	r.sweep(r.IdleTTL)

	r.mutex.Lock()
	if live, ok := r.engines[key]; ok && answering(live.eng) {
		live.used = NowFunc()
		r.mutex.Unlock()
		return live.eng, nil
	}
	r.mutex.Unlock()

	eng, err := r.newEngine()
	if err != nil {
		return nil, err
	}
	if err = eng.Load(ctx, quizID, studentID); err != nil {
		return nil, err
	}

	r.mutex.Lock()
	old := r.engines[key]
	if old != nil && answering(old.eng) {
		// opened concurrently
		old.used = NowFunc()
		r.mutex.Unlock()
		eng.Close()
		return old.eng, nil
	}
	r.engines[key] = &liveEngine{eng: eng, used: NowFunc()}
	r.mutex.Unlock()

	eng.StartTimer(r.ctx)
	if old != nil {
		old.eng.Close()
	}
	return eng, nil
}

// Get returns the live engine of the pair, opening one if there is none.
func (r *Registry) Get(ctx context.Context, quizID, studentID string) (*Engine, error) {
	r.mutex.Lock()
	live, ok := r.engines[attemptKey{quizID, studentID}]
	if ok {
		live.used = NowFunc()
	}
	r.mutex.Unlock()
	if ok {
		return live.eng, nil
	}
	return r.Open(ctx, quizID, studentID)
}

// Restart restarts the countdown of eng, e.g. after a retake.
func (r *Registry) Restart(eng *Engine) {
	eng.StartTimer(r.ctx)
}

// Drop closes and forgets the engine of the pair.
func (r *Registry) Drop(quizID, studentID string) {
	key := attemptKey{quizID, studentID}
	r.mutex.Lock()
	live := r.engines[key]
	delete(r.engines, key)
	r.mutex.Unlock()
	if live != nil {
		live.eng.Close()
	}
}

// sweep closes and forgets the finished engines not used for ttl, and returns how many went.
func (r *Registry) sweep(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := NowFunc().Add(-ttl)

	var stale []*Engine
	r.mutex.Lock()
	for key, live := range r.engines {
		if live.used.Before(cutoff) && !answering(live.eng) {
			stale = append(stale, live.eng)
			delete(r.engines, key)
		}
	}
	r.mutex.Unlock()

	for _, eng := range stale {
		eng.Close()
	}
	return len(stale)
}

// Len returns the number of live engines.
func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.engines)
}

// Close closes every engine.
func (r *Registry) Close() {
	r.mutex.Lock()
	engines := r.engines
	r.engines = make(map[attemptKey]*liveEngine)
	r.mutex.Unlock()
	for _, live := range engines {
		live.eng.Close()
	}
}
