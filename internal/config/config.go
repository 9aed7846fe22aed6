package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AnishMulay/capfs/internal/capsule_service/localdisc"
	ds "github.com/AnishMulay/capfs/internal/directory_service"
	"github.com/AnishMulay/capfs/internal/handle_table"
	"github.com/AnishMulay/capfs/internal/log_service"
	"github.com/AnishMulay/capfs/internal/name_service/etcd"
)

const (
	CapsuleBackendMemory    = "memory"
	CapsuleBackendLocalDisc = "localdisc"
	CapsuleBackendGRPC      = "grpc"

	NameBackendMemory    = "memory"
	NameBackendLocalDisc = "localdisc"
	NameBackendEtcd      = "etcd"

	LogBackendFile    = "file"
	LogBackendConsole = "console"
)

var ErrInvalidConfig = errors.New("invalid config")

type LogConfig struct {
	Level   string `yaml:"level"`
	Backend string `yaml:"backend"`
}

type CapsuleConfig struct {
	Backend     string `yaml:"backend"`
	Address     string `yaml:"address"`
	Compression string `yaml:"compression"`
}

type NameConfig struct {
	Backend       string   `yaml:"backend"`
	EtcdEndpoints []string `yaml:"etcd_endpoints"`
	EtcdPrefix    string   `yaml:"etcd_prefix"`
}

type DirectoryConfig struct {
	NamePrefix    string        `yaml:"name_prefix"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

type MountConfig struct {
	Mountpoint string `yaml:"mountpoint"`
	AllowOther bool   `yaml:"allow_other"`
	MaxHandles int    `yaml:"max_handles"`
	Debug      bool   `yaml:"debug"`
}

type ServeConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type Config struct {
	NodeID    string          `yaml:"node_id"`
	DataDir   string          `yaml:"data_dir"`
	Log       LogConfig       `yaml:"log"`
	Capsules  CapsuleConfig   `yaml:"capsules"`
	Names     NameConfig      `yaml:"names"`
	Directory DirectoryConfig `yaml:"directory"`
	Mount     MountConfig     `yaml:"mount"`
	Serve     ServeConfig     `yaml:"serve"`
}

func Default() *Config {
	return &Config{
		NodeID:  "capfs",
		DataDir: "./data",
		Log: LogConfig{
			Level:   log_service.InfoLevel,
			Backend: LogBackendFile,
		},
		Capsules: CapsuleConfig{
			Backend:     CapsuleBackendLocalDisc,
			Address:     "localhost:7420",
			Compression: "zstd",
		},
		Names: NameConfig{
			Backend:       NameBackendLocalDisc,
			EtcdEndpoints: []string{"localhost:2379"},
			EtcdPrefix:    etcd.DefaultPrefix,
		},
		Directory: DirectoryConfig{
			NamePrefix:    ds.DefaultNamePrefix,
			RetryAttempts: ds.DefaultRetryAttempts,
			RetryBackoff:  ds.DefaultRetryBackoff,
		},
		Mount: MountConfig{
			Mountpoint: "./mnt",
			MaxHandles: handle_table.DefaultMaxHandles,
		},
		Serve: ServeConfig{
			ListenAddr: ":7420",
		},
	}
}

// LoadConfig reads the config at path. A missing file is created with the
// defaults, which are then returned. Fields absent from the file keep their
// default values.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Capsules.Backend {
	case CapsuleBackendMemory, CapsuleBackendLocalDisc:
	case CapsuleBackendGRPC:
		if c.Capsules.Address == "" {
			return fmt.Errorf("%w: capsules.address is required for the grpc backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown capsule backend %q", ErrInvalidConfig, c.Capsules.Backend)
	}
	if _, err := localdisc.ParseCompressionTag(c.Capsules.Compression); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.Names.Backend {
	case NameBackendMemory, NameBackendLocalDisc:
	case NameBackendEtcd:
		if len(c.Names.EtcdEndpoints) == 0 {
			return fmt.Errorf("%w: names.etcd_endpoints is required for the etcd backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown name backend %q", ErrInvalidConfig, c.Names.Backend)
	}

	switch c.Log.Backend {
	case LogBackendFile, LogBackendConsole:
	default:
		return fmt.Errorf("%w: unknown log backend %q", ErrInvalidConfig, c.Log.Backend)
	}

	if c.Directory.NamePrefix == "" {
		return fmt.Errorf("%w: directory.name_prefix is empty", ErrInvalidConfig)
	}
	if c.Directory.RetryAttempts < 1 {
		return fmt.Errorf("%w: directory.retry_attempts must be at least 1", ErrInvalidConfig)
	}
	if c.Mount.MaxHandles < 1 {
		return fmt.Errorf("%w: mount.max_handles must be at least 1", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) CapsuleDir() string {
	return filepath.Join(c.DataDir, "capsules")
}

func (c *Config) NameDir() string {
	return filepath.Join(c.DataDir, "names")
}

func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}
