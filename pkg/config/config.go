// Package config loads Hodei's configuration: a YAML file decoded with
// gopkg.in/yaml.v3, with cobra persistent flags layered on top as
// overrides, the same two-source shape used for applying a resource YAML
// plus CLI flag overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// InfrastructureKind selects which provider.Provider backs pool workers.
type InfrastructureKind string

const (
	InfrastructureContainerDaemon	InfrastructureKind = "container_daemon"
	InfrastructureClusterAPI	InfrastructureKind = "cluster_api"
	InfrastructureLocal	InfrastructureKind = "local"
)

// StorageBackend selects the repository implementation wired at startup.
type StorageBackend string

const (
	StorageMemory	StorageBackend = "memory"
	StorageBolt	StorageBackend = "bolt"
	StoragePostgres	StorageBackend = "postgres"
)

// CacheBackend selects the pool.UtilizationCache implementation.
type CacheBackend string

const (
	CacheMemory	CacheBackend = "memory"
	CacheRedis	CacheBackend = "redis"
)

// SoftLimitAction is the configured response to a quota soft-threshold
// crossing.
type SoftLimitAction string

const (
	SoftLimitAllowWithWarning	SoftLimitAction = "allow_with_warning"
	SoftLimitQueue	SoftLimitAction = "queue"
)

// ContainerDaemonConfig configures the containerd-backed provider adapter
// when Infrastructure.Kind is container_daemon.
type ContainerDaemonConfig struct {
	SocketPath	string	`yaml:"socketPath"`
	Namespace	string	`yaml:"namespace"`
	WorkerImage	string	`yaml:"workerImage"`
}

// ClusterConfig configures the Kubernetes-backed provider adapter when
// Infrastructure.Kind is cluster_api.
type ClusterConfig struct {
	Kubeconfig	string	`yaml:"kubeconfig"`
	Context	string	`yaml:"context"`
	Namespace	string	`yaml:"namespace"`
	WorkerImage	string	`yaml:"workerImage"`
}

type InfrastructureConfig struct {
	Kind	InfrastructureKind	`yaml:"kind"`
	ContainerDaemon	ContainerDaemonConfig	`yaml:"containerDaemon"`
	Cluster	ClusterConfig	`yaml:"cluster"`
}

type WorkerConfig struct {
	HeartbeatTimeoutSeconds	int	`yaml:"heartbeatTimeoutSeconds"`
	HeartbeatIntervalSeconds	int	`yaml:"heartbeatIntervalSeconds"`
}

func (w WorkerConfig) HeartbeatTimeout() time.Duration {
	return time.Duration(w.HeartbeatTimeoutSeconds) * time.Second
}

func (w WorkerConfig) HeartbeatInterval() time.Duration {
	return time.Duration(w.HeartbeatIntervalSeconds) * time.Second
}

type SchedulerConfig struct {
	DefaultStrategy	string	`yaml:"defaultStrategy"`
}

type ExecutionConfig struct {
	CancelGraceSeconds	int	`yaml:"cancelGraceSeconds"`
}

func (e ExecutionConfig) CancelGracePeriod() time.Duration {
	return time.Duration(e.CancelGraceSeconds) * time.Second
}

type QuotaConfig struct {
	SoftLimitAction	SoftLimitAction	`yaml:"softLimitAction"`
}

type LogsConfig struct {
	PerExecutionBufferBytes	int	`yaml:"perExecutionBufferBytes"`
}

type BoltConfig struct {
	Path	string	`yaml:"path"`
}

type PostgresConfig struct {
	DSN	string	`yaml:"dsn"`
}

type StorageConfig struct {
	Backend	StorageBackend	`yaml:"backend"`
	Bolt	BoltConfig	`yaml:"bolt"`
	Postgres	PostgresConfig	`yaml:"postgres"`
}

type RedisConfig struct {
	Addr	string	`yaml:"addr"`
	Password	string	`yaml:"password"`
	DB	int	`yaml:"db"`
}

type CacheConfig struct {
	Backend	CacheBackend	`yaml:"backend"`
	Redis	RedisConfig	`yaml:"redis"`
}

type LogConfig struct {
	Level	string	`yaml:"level"`
	JSON	bool	`yaml:"json"`
}

type ServerConfig struct {
	GRPCListenAddr	string	`yaml:"grpcListenAddr"`
	MetricsListenAddr	string	`yaml:"metricsListenAddr"`
	// TLSEnabled gates mTLS on the worker gRPC service via pkg/security's
	// self-issued cluster CA. Disable only for local development against a
	// worker that doesn't speak TLS.
	TLSEnabled	bool	`yaml:"tlsEnabled"`
}

// Config is the full recognized configuration surface, including the
// domain-backend selectors for storage, cache and infrastructure.
type Config struct {
	Infrastructure	InfrastructureConfig	`yaml:"infrastructure"`
	Worker	WorkerConfig	`yaml:"worker"`
	Scheduler	SchedulerConfig	`yaml:"scheduler"`
	Execution	ExecutionConfig	`yaml:"execution"`
	Quota	QuotaConfig	`yaml:"quota"`
	Logs	LogsConfig	`yaml:"logs"`
	Storage	StorageConfig	`yaml:"storage"`
	Cache	CacheConfig	`yaml:"cache"`
	Log	LogConfig	`yaml:"log"`
	Server	ServerConfig	`yaml:"server"`
}

// Default returns the configuration with every field set to its default
// value.
func Default() Config {
	return	Config{
		Infrastructure: InfrastructureConfig{Kind: InfrastructureLocal},
		Worker: WorkerConfig{
			HeartbeatTimeoutSeconds: 300,
			HeartbeatIntervalSeconds: 30,
		},
		Scheduler: SchedulerConfig{DefaultStrategy: "leastloaded"},
		Execution: ExecutionConfig{CancelGraceSeconds: 30},
		Quota: QuotaConfig{SoftLimitAction: SoftLimitAllowWithWarning},
		Logs: LogsConfig{PerExecutionBufferBytes: 10_000_000},
		Storage: StorageConfig{Backend: StorageMemory, Bolt: BoltConfig{Path: "./hodei-data/hodei.db"}},
		Cache: CacheConfig{Backend: CacheMemory},
		Log: LogConfig{Level: "info", JSON: false},
		Server: ServerConfig{
			GRPCListenAddr: "127.0.0.1:7300",
			MetricsListenAddr: "127.0.0.1:9090",
			TLSEnabled: true,
		},
	}
}

// Load reads a YAML file (if path is non-empty and exists) over the
// defaults, an optional-file-over-defaults shape generalized to startup
// configuration instead of a single applied resource.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return	cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return	cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return	cfg, nil
}

// BindFlags registers the persistent flags cmd/hodei exposes as overrides
// on top of the YAML file.
func BindFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "path to YAML config file")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")
	cmd.PersistentFlags().String("grpc-listen-addr", "", "address the worker gRPC service listens on")
	cmd.PersistentFlags().String("metrics-listen-addr", "", "address the metrics/health HTTP server listens on")
	cmd.PersistentFlags().String("storage-backend", "", "storage backend (memory, bolt, postgres)")
	cmd.PersistentFlags().Bool("insecure", false, "disable mTLS on the worker gRPC service")
}

// ApplyFlags overlays any flags the user actually set onto cfg, leaving
// YAML/default values untouched otherwise.
func ApplyFlags(cfg Config, cmd *cobra.Command) Config {
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}
	if v, _ := cmd.Flags().GetString("grpc-listen-addr"); v != "" {
		cfg.Server.GRPCListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("metrics-listen-addr"); v != "" {
		cfg.Server.MetricsListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("storage-backend"); v != "" {
		cfg.Storage.Backend = StorageBackend(v)
	}
	if cmd.Flags().Changed("insecure") {
		if insecure, _ := cmd.Flags().GetBool("insecure"); insecure {
			cfg.Server.TLSEnabled = false
		}
	}
	return	cfg
}
