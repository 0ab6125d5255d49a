package redisdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/progress"
)

const (
	pendingPrefix   = "enrollment:pending:"
	referencePrefix = "enrollment:reference:" // reference -> pending id
)

// Open connects to Redis and checks the connection.
func Open(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connecting to redis at %s", conf.Addr)
	}
	return client, nil
}

// Cache stores JSON encoded values.
type Cache struct {
	client redis.Cmdable
}

var _ progress.Cache = (*Cache)(nil)

func NewCache(client redis.Cmdable) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, errors.Wrapf(err, "getting %s", key)
	}
	if err = json.Unmarshal(raw, dest); err != nil {
		return false, errors.Wrapf(err, "decoding %s", key)
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	return errors.Wrapf(c.client.Set(ctx, key, raw, ttl).Err(), "setting %s", key)
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return errors.Wrap(c.client.Del(ctx, keys...).Err(), "deleting keys")
}

// RecoveryStore keeps pending enrollments as JSON values expiring with them.
type RecoveryStore struct {
	client redis.Cmdable
}

var _ enrollment.RecoveryStore = (*RecoveryStore)(nil)

func NewRecoveryStore(client redis.Cmdable) *RecoveryStore {
	return &RecoveryStore{client: client}
}

func (s *RecoveryStore) Save(ctx context.Context, p enrollment.PendingEnrollment) error {
	p.ID = enrollment.PendingID(p.CourseID, p.Form.Email)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = enrollment.NowFunc().UTC()
	}
	ttl := p.ExpiresAt.Sub(enrollment.NowFunc())
	if ttl <= 0 {
		return s.Delete(ctx, p.CourseID, p.Form.Email)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encoding pending enrollment")
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, pendingPrefix+p.ID, raw, ttl)
		if p.Reference != "" {
			pipe.Set(ctx, referencePrefix+p.Reference, p.ID, ttl)
		}
		return nil
	})
	return errors.Wrap(err, "saving pending enrollment")
}

func (s *RecoveryStore) Load(ctx context.Context, courseID, email string) (enrollment.PendingEnrollment, error) {
	return s.get(ctx, enrollment.PendingID(courseID, email))
}

// LoadByReference follows the reference index. An index entry left by a replaced record is ignored.
func (s *RecoveryStore) LoadByReference(ctx context.Context, ref string) (enrollment.PendingEnrollment, error) {
	if ref == "" {
		return enrollment.PendingEnrollment{}, enrollment.ErrNoPendingEnrollment
	}
	id, err := s.client.Get(ctx, referencePrefix+ref).Result()
	if err == redis.Nil {
		return enrollment.PendingEnrollment{}, enrollment.ErrNoPendingEnrollment
	} else if err != nil {
		return enrollment.PendingEnrollment{}, errors.Wrap(err, "loading pending enrollment reference")
	}
	p, err := s.get(ctx, id)
	if err != nil {
		return p, err
	}
	if p.Reference != ref {
		return enrollment.PendingEnrollment{}, enrollment.ErrNoPendingEnrollment
	}
	return p, nil
}

func (s *RecoveryStore) get(ctx context.Context, id string) (enrollment.PendingEnrollment, error) {
	var p enrollment.PendingEnrollment
	raw, err := s.client.Get(ctx, pendingPrefix+id).Bytes()
	if err == redis.Nil {
		return p, enrollment.ErrNoPendingEnrollment
	} else if err != nil {
		return p, errors.Wrap(err, "loading pending enrollment")
	}
	if err = json.Unmarshal(raw, &p); err != nil {
		return p, errors.Wrap(err, "decoding pending enrollment")
	}
	if p.ExpiresAt.Before(enrollment.NowFunc()) {
		return enrollment.PendingEnrollment{}, enrollment.ErrNoPendingEnrollment
	}
	return p, nil
}

func (s *RecoveryStore) Delete(ctx context.Context, courseID, email string) error {
	key := pendingPrefix + enrollment.PendingID(courseID, email)
	return errors.Wrap(s.client.Del(ctx, key).Err(), "deleting pending enrollment")
}
