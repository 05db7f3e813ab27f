package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration document, broken into section structs
// the way the teacher's config.go does, rebased onto etcd coordination
// instead of Redis.
type Config struct {
	Etcd     EtcdConfig
	Service  ServiceConfig
	Worker   WorkerConfig
	Queue    QueueConfig
	Server   ServerConfig
	Metrics  MetricsConfig
	Auth     AuthConfig
	LogLevel string
}

// EtcdConfig configures the coordination.Client dial, replacing the
// teacher's RedisConfig.
type EtcdConfig struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
}

// ServiceConfig names the logical keyspace namespace every component binds
// to (spec §6's "vectorizer" service name — "/services/{name}/" in etcd).
type ServiceConfig struct {
	Name string
}

// WorkerConfig configures a worker process: identity, concurrency, and the
// batch-processing parameters the runner needs.
type WorkerConfig struct {
	Identity        string
	Directory       string
	ChunkSize       int
	Concurrency     int
	IdentityTTL     time.Duration
	ShutdownTimeout time.Duration
}

// QueueConfig configures the claim protocol's lease TTL (spec §6
// recommends 10s).
type QueueConfig struct {
	ClaimTTL time.Duration
}

// ServerConfig configures the status/observability HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimitRPS int
}

// MetricsConfig configures the /metrics Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// AuthConfig configures optional bearer-token auth on the HTTP admin
// surface's mutating routes. Never touches the etcd coordination channel
// itself (spec §1's non-goal: "authentication/encryption of the
// coordination channel is out of scope").
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

// Load reads config.yaml (if present) from the usual search paths, overlays
// TASKQUEUE_-prefixed environment variables, and fills in defaults for
// anything unset. Mirrors the teacher's config.Load exactly.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/taskqueue")

	setDefaults()

	viper.SetEnvPrefix("TASKQUEUE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	// Etcd defaults
	viper.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	viper.SetDefault("etcd.dialtimeout", 5*time.Second)
	viper.SetDefault("etcd.username", "")
	viper.SetDefault("etcd.password", "")

	// Service defaults
	viper.SetDefault("service.name", "vectorizer")

	// Worker defaults — identity falls back to the host name reported by
	// os.Hostname() at the call site (see cmd/worker/main.go); that name is
	// used as-is and is not resolved to a fully qualified domain name.
	viper.SetDefault("worker.identity", "")
	viper.SetDefault("worker.directory", ".")
	viper.SetDefault("worker.chunksize", 100)
	viper.SetDefault("worker.concurrency", 1)
	viper.SetDefault("worker.identityttl", 30*time.Second)
	viper.SetDefault("worker.shutdowntimeout", 30*time.Second)

	// Queue defaults
	viper.SetDefault("queue.claimttl", 10*time.Second)

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)
	viper.SetDefault("server.ratelimitrps", 0)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.apikeys", []string{})

	// Logging defaults
	viper.SetDefault("loglevel", "info")
}
