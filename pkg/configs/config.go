package configs

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const (
	DatastoreRedis     = "redis"
	DatastoreCassandra = "cassandra"
	DatastoreMemory    = "memory"
)

type Config struct {
	HttpAddr        string
	DebugAddr       string
	Datastore       string
	Redis           RedisConfig
	Cassandra       CassandraConfig
	ServiceName     string
	ListConcurrency int
	LogLevel        string
	LogFormat       string
	LogFile         string
	RuntimeConfig   string
}

type RedisConfig struct {
	URL       string
	Address   string
	Database  int
	Password  string
	KeyPrefix string
	Timeout   time.Duration
}

type CassandraConfig struct {
	Hosts    string
	Keyspace string
	Timeout  time.Duration
}

// HostList splits the comma separated host setting, dropping blanks.
func (c CassandraConfig) HostList() []string {
	hosts := lo.Map(strings.Split(c.Hosts, ","), func(h string, _ int) string {
		return strings.TrimSpace(h)
	})
	return lo.Filter(hosts, func(h string, _ int) bool {
		return h != ""
	})
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Datastore {
	case DatastoreRedis:
		if c.Redis.URL == "" && c.Redis.Address == "" {
			return errors.New("redis datastore needs a redis url or address")
		}
	case DatastoreCassandra:
		if len(c.Cassandra.HostList()) == 0 {
			return errors.New("cassandra datastore needs at least one host")
		}
		if c.Cassandra.Keyspace == "" {
			return errors.New("cassandra datastore needs a keyspace")
		}
	case DatastoreMemory:
	default:
		return errors.Errorf("invalid datastore %q", c.Datastore)
	}

	if !lo.Contains([]string{"text", "json"}, c.LogFormat) {
		return errors.Errorf("invalid log format %q", c.LogFormat)
	}

	if c.ListConcurrency < 1 {
		return errors.Errorf("list concurrency must be positive, got %d", c.ListConcurrency)
	}

	return nil
}
