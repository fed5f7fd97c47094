package cassandra

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"
	"github.com/samueltorres/hitcounter/pkg/counter"
	"github.com/sirupsen/logrus"
)

var _ counter.CounterStorage = (*Storage)(nil)

// Schema is the table the storage expects inside its keyspace.
const Schema = `CREATE TABLE IF NOT EXISTS %s.counters (name text PRIMARY KEY, value bigint)`

const (
	selectValue = `SELECT value FROM %s.counters WHERE name = ? LIMIT 1`
	upsertValue = `INSERT INTO %s.counters (name, value) VALUES (?, ?)`
	insertValue = `INSERT INTO %s.counters (name, value) VALUES (?, ?) IF NOT EXISTS`
	swapValue   = `UPDATE %s.counters SET value = ? WHERE name = ? IF value = ?`
	deleteValue = `DELETE FROM %s.counters WHERE name = ? IF EXISTS`
	selectNames = `SELECT name FROM %s.counters`
	selectNow   = `SELECT now() FROM system.local`
)

const defaultSwapAttempts = 16

// session is the part of a cql session the storage needs.
type session interface {
	Exec(ctx context.Context, stmt string, values ...interface{}) error
	Scan(ctx context.Context, stmt string, values []interface{}, dest ...interface{}) error
	ScanCAS(ctx context.Context, stmt string, values []interface{}, dest ...interface{}) (bool, error)
	Strings(ctx context.Context, stmt string) ([]string, error)
}

// Storage keeps counters as bigint rows. Every write that depends on the
// current row is a lightweight transaction, so creation is set-if-absent and
// an increment never brings back a deleted counter.
type Storage struct {
	session      session
	keyspace     string
	logger       *logrus.Logger
	swapAttempts int
}

func NewStorage(s *gocql.Session, keyspace string, logger *logrus.Logger) *Storage {
	return newStorage(gocqlSession{session: s}, keyspace, logger)
}

func newStorage(s session, keyspace string, logger *logrus.Logger) *Storage {
	return &Storage{
		session:      s,
		keyspace:     keyspace,
		logger:       logger,
		swapAttempts: defaultSwapAttempts,
	}
}

// CreateSchema creates the counters table when missing.
func (s *Storage) CreateSchema(ctx context.Context) error {
	err := s.session.Exec(ctx, fmt.Sprintf(Schema, s.keyspace))
	return classify("cassandra storage create schema failure", err)
}

func (s *Storage) Get(ctx context.Context, name string) (int64, bool, error) {
	var value int64

	err := s.session.Scan(ctx, s.stmt(selectValue), []interface{}{name}, &value)
	if err == gocql.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify("cassandra storage get failure", err)
	}

	return value, true, nil
}

// Set overwrites the counter unconditionally.
func (s *Storage) Set(ctx context.Context, name string, value int64) error {
	err := s.session.Exec(ctx, s.stmt(upsertValue), name, value)
	return classify("cassandra storage set failure", err)
}

func (s *Storage) SetNX(ctx context.Context, name string, value int64) (bool, error) {
	var (
		existingName  string
		existingValue int64
	)

	applied, err := s.session.ScanCAS(ctx, s.stmt(insertValue), []interface{}{name, value}, &existingName, &existingValue)
	if err != nil {
		return false, classify("cassandra storage setnx failure", err)
	}
	return applied, nil
}

// Incr adds one with a compare-and-set on the current value, retrying while
// other writers win the race. The condition fails on a missing row, so a
// deleted counter stays deleted.
func (s *Storage) Incr(ctx context.Context, name string) (int64, error) {
	current, ok, err := s.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, counter.ErrNonExistingCounter
	}

	for attempt := 0; attempt < s.swapAttempts; attempt++ {
		var seen *int64

		applied, err := s.session.ScanCAS(ctx, s.stmt(swapValue), []interface{}{current + 1, name, current}, &seen)
		if err != nil {
			return 0, classify("cassandra storage incr failure", err)
		}
		if applied {
			s.logger.Debugf("cassandra storage incremented %s to %d", name, current+1)
			return current + 1, nil
		}
		if seen == nil {
			return 0, counter.ErrNonExistingCounter
		}
		current = *seen
	}

	return 0, errors.Errorf("cassandra storage incr failure: %s changed %d times in a row", name, s.swapAttempts)
}

func (s *Storage) Del(ctx context.Context, name string) error {
	_, err := s.session.ScanCAS(ctx, s.stmt(deleteValue), []interface{}{name})
	return classify("cassandra storage del failure", err)
}

func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	names, err := s.session.Strings(ctx, s.stmt(selectNames))
	if err != nil {
		return nil, classify("cassandra storage keys failure", err)
	}
	return names, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	err := s.session.Exec(ctx, selectNow)
	return classify("cassandra storage ping failure", err)
}

func (s *Storage) stmt(format string) string {
	return fmt.Sprintf(format, s.keyspace)
}

// gocqlSession runs statements at LOCAL_QUORUM, with LOCAL_SERIAL for the
// paxos phase of conditional writes.
type gocqlSession struct {
	session *gocql.Session
}

func (g gocqlSession) query(ctx context.Context, stmt string, values ...interface{}) *gocql.Query {
	return g.session.
		Query(stmt, values...).
		WithContext(ctx).
		Consistency(gocql.LocalQuorum)
}

func (g gocqlSession) Exec(ctx context.Context, stmt string, values ...interface{}) error {
	return g.query(ctx, stmt, values...).Exec()
}

func (g gocqlSession) Scan(ctx context.Context, stmt string, values []interface{}, dest ...interface{}) error {
	return g.query(ctx, stmt, values...).Scan(dest...)
}

func (g gocqlSession) ScanCAS(ctx context.Context, stmt string, values []interface{}, dest ...interface{}) (bool, error) {
	return g.query(ctx, stmt, values...).
		SerialConsistency(gocql.LocalSerial).
		ScanCAS(dest...)
}

func (g gocqlSession) Strings(ctx context.Context, stmt string) ([]string, error) {
	var (
		values []string
		value  string
	)

	iter := g.query(ctx, stmt).Iter()
	for iter.Scan(&value) {
		values = append(values, value)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	return values, nil
}

// classify separates request errors returned by the cluster (bad query,
// schema mismatch) from failures to reach it.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var reqErr gocql.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Code() {
		case gocql.ErrCodeUnavailable, gocql.ErrCodeReadTimeout, gocql.ErrCodeWriteTimeout,
			gocql.ErrCodeOverloaded, gocql.ErrCodeBootstrapping:
			return counter.Unavailable(op, err)
		}
		return errors.Wrap(err, op)
	}

	return counter.Unavailable(op, err)
}
