package redis

import (
	"context"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/samueltorres/hitcounter/pkg/counter"
	"github.com/sirupsen/logrus"
)

var _ counter.CounterStorage = (*Storage)(nil)

// incrIfExists increments KEYS[1] only when it is already present, so an
// update racing a delete never brings the counter back.
var incrIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("INCR", KEYS[1])
end
return false
`)

const scanCount = 100

// Storage keeps counters as plain integer keys on a redis server.
type Storage struct {
	client *redis.Client
	prefix string
	logger *logrus.Logger
}

// Option configures a Storage.
type Option func(*Storage)

// WithKeyPrefix namespaces every counter key, e.g. "hits:".
func WithKeyPrefix(prefix string) Option {
	return func(s *Storage) {
		s.prefix = prefix
	}
}

func NewStorage(client *redis.Client, logger *logrus.Logger, opts ...Option) *Storage {
	s := &Storage{
		client: client,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) Get(ctx context.Context, name string) (int64, bool, error) {
	raw, err := s.client.WithContext(ctx).Get(s.key(name)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify("redis storage get failure", err)
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "redis storage: value of %q is not an integer", name)
	}
	return v, true, nil
}

func (s *Storage) Set(ctx context.Context, name string, value int64) error {
	err := s.client.WithContext(ctx).Set(s.key(name), value, 0).Err()
	return classify("redis storage set failure", err)
}

func (s *Storage) SetNX(ctx context.Context, name string, value int64) (bool, error) {
	ok, err := s.client.WithContext(ctx).SetNX(s.key(name), value, 0).Result()
	if err != nil {
		return false, classify("redis storage setnx failure", err)
	}
	return ok, nil
}

func (s *Storage) Incr(ctx context.Context, name string) (int64, error) {
	v, err := incrIfExists.Run(s.client.WithContext(ctx), []string{s.key(name)}).Int64()
	if err == redis.Nil {
		return 0, counter.ErrNonExistingCounter
	}
	if err != nil {
		return 0, classify("redis storage incr failure", err)
	}

	s.logger.Debugf("redis storage incremented %s to %d", name, v)
	return v, nil
}

func (s *Storage) Del(ctx context.Context, name string) error {
	err := s.client.WithContext(ctx).Del(s.key(name)).Err()
	return classify("redis storage del failure", err)
}

func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	var names []string

	iter := s.client.WithContext(ctx).Scan(0, escapeGlob(s.prefix)+"*", scanCount).Iterator()
	for iter.Next() {
		names = append(names, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, classify("redis storage scan failure", err)
	}

	// SCAN may return a key more than once
	return lo.Uniq(names), nil
}

func (s *Storage) Ping(ctx context.Context) error {
	err := s.client.WithContext(ctx).Ping().Err()
	return classify("redis storage ping failure", err)
}

func (s *Storage) key(name string) string {
	return s.prefix + name
}

// replyError is the type go-redis gives to error replies sent by the server,
// redis.Nil included.
var replyError = reflect.TypeOf(redis.Nil)

// classify separates error replies (WRONGTYPE, OOM, script errors) from
// failures to reach the server.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if reflect.TypeOf(err) == replyError {
		return errors.Wrap(err, op)
	}
	return counter.Unavailable(op, err)
}

func escapeGlob(p string) string {
	var b strings.Builder
	for _, r := range p {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
