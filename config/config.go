package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigEnvVar names the environment variable holding an explicit config path
const ConfigEnvVar = "CLOUD_DATA_MANAGER_CONFIG"

// DefaultFileName is looked up in the working directory and then in $HOME
const DefaultFileName = "config.yaml"

var (
	ErrConfigNotFound = errors.New("no config.yaml found, create one from config.yaml.example")
	ErrInvalidConfig  = errors.New("invalid config")
)

// ValidationError describes a missing or malformed config key
type ValidationError struct {
	Section string
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("invalid config: %s: %s", e.Section, e.Message)
	}
	return fmt.Sprintf("invalid config: %s.%s: %s", e.Section, e.Key, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// object storage providers
const (
	ProviderOCI = "oci"
	ProviderS3  = "s3"
	ProviderGCS = "gcs"
	ProviderFS  = "fs"
)

// warehouse drivers
const (
	DriverOracle   = "oracle"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// credentials and endpoint of the cloud account
type CloudConfig struct {
	Provider     string `yaml:"provider"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	KeyFile      string `yaml:"key_file"`
	UsePathStyle bool   `yaml:"use_path_style"`
	RootDir      string `yaml:"root_dir"`
}

// object storage settings
type StorageConfig struct {
	Namespace            string `yaml:"namespace"`
	DefaultBucket        string `yaml:"default_bucket"`
	MultipartThresholdMB int64  `yaml:"multipart_threshold_mb"`
	PartSizeMB           int64  `yaml:"part_size_mb"`
	ParallelUploads      int    `yaml:"parallel_uploads"`
	ListLimit            int    `yaml:"list_limit"`
	ParquetCompression   string `yaml:"parquet_compression"`
}

// data warehouse connection settings
type WarehouseConfig struct {
	Driver           string        `yaml:"driver"`
	ConnectionString string        `yaml:"connection_string"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	WalletLocation   string        `yaml:"wallet_location"`
	PoolMin          int           `yaml:"pool_min"`
	PoolMax          int           `yaml:"pool_max"`
	PoolIncrement    int           `yaml:"pool_increment"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
}

type LoggingConfig struct {
	Verbosity int `yaml:"verbosity"`
}

// Config struct to map config.yaml
type Config struct {
	Cloud     *CloudConfig     `yaml:"cloud"`
	Storage   *StorageConfig   `yaml:"storage"`
	Warehouse *WarehouseConfig `yaml:"warehouse"`
	Logging   LoggingConfig    `yaml:"logging"`

	// Path is the file the config was loaded from
	Path string `yaml:"-"`
}

// LoadConfig finds, parses and validates config.yaml.
// An empty path falls back to $CLOUD_DATA_MANAGER_CONFIG, ./config.yaml and ~/config.yaml.
func LoadConfig(path string) (*Config, error) {
	resolved, err := FindConfigFile(path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, err
	}
	cfg.Path = resolved
	return cfg, nil
}

// Parse decodes and validates YAML content, expanding ${VAR} references first
func Parse(content []byte) (*Config, error) {
	expanded := ExpandEnvRefs(string(content))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// FindConfigFile resolves the config path in lookup order
func FindConfigFile(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if env := GetEnv(ConfigEnvVar, ""); env != "" {
		return env, nil
	}
	if fileExists(DefaultFileName) {
		return DefaultFileName, nil
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, DefaultFileName)
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", ErrConfigNotFound
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Validate checks required keys for every section present and expands ~ in paths
func (c *Config) Validate() error {
	if c.Cloud == nil {
		return &ValidationError{Section: "cloud", Message: `missing "cloud" section`}
	}
	if c.Cloud.Provider == "" {
		c.Cloud.Provider = ProviderOCI
	}
	c.Cloud.Provider = strings.ToLower(c.Cloud.Provider)

	var required map[string]string
	switch c.Cloud.Provider {
	case ProviderOCI, ProviderS3:
		required = map[string]string{
			"region":     c.Cloud.Region,
			"access_key": c.Cloud.AccessKey,
			"secret_key": c.Cloud.SecretKey,
		}
	case ProviderGCS:
		required = map[string]string{}
	case ProviderFS:
		required = map[string]string{"root_dir": c.Cloud.RootDir}
	default:
		return &ValidationError{Section: "cloud", Key: "provider", Message: fmt.Sprintf("unsupported provider %q", c.Cloud.Provider)}
	}
	if err := requireKeys("cloud", required); err != nil {
		return err
	}

	if c.Storage != nil {
		if err := requireKeys("storage", map[string]string{"namespace": c.Storage.Namespace}); err != nil {
			return err
		}
		if c.Storage.MultipartThresholdMB < 0 || c.Storage.PartSizeMB < 0 || c.Storage.ParallelUploads < 0 {
			return &ValidationError{Section: "storage", Message: "upload sizes must be non-negative"}
		}
	}

	if c.Warehouse != nil {
		err := requireKeys("warehouse", map[string]string{
			"connection_string": c.Warehouse.ConnectionString,
			"username":          c.Warehouse.Username,
			"password":          c.Warehouse.Password,
		})
		if err != nil {
			return err
		}
		if c.Warehouse.Driver == "" {
			c.Warehouse.Driver = DriverOracle
		}
		c.Warehouse.Driver = strings.ToLower(c.Warehouse.Driver)
		switch c.Warehouse.Driver {
		case DriverOracle, DriverPostgres, DriverMySQL:
		default:
			return &ValidationError{Section: "warehouse", Key: "driver", Message: fmt.Sprintf("unsupported driver %q", c.Warehouse.Driver)}
		}
		if c.Warehouse.PoolMax < 0 || c.Warehouse.PoolMin < 0 {
			return &ValidationError{Section: "warehouse", Message: "pool sizes must be non-negative"}
		}
		if c.Warehouse.PoolMax > 0 && c.Warehouse.PoolMin > c.Warehouse.PoolMax {
			return &ValidationError{Section: "warehouse", Key: "pool_min", Message: "must not exceed pool_max"}
		}
		c.Warehouse.WalletLocation = ExpandHome(c.Warehouse.WalletLocation)
	}

	c.Cloud.KeyFile = ExpandHome(c.Cloud.KeyFile)
	c.Cloud.RootDir = ExpandHome(c.Cloud.RootDir)
	return nil
}

// requireKeys reports the first missing key in sorted order so errors are stable
func requireKeys(section string, keys map[string]string) error {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if strings.TrimSpace(keys[k]) == "" {
			return &ValidationError{Section: section, Key: k, Message: "is required"}
		}
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func (c *Config) HasStorage() bool   { return c.Storage != nil }
func (c *Config) HasWarehouse() bool { return c.Warehouse != nil }

// CloudConfig returns a copy of the cloud section
func (c *Config) CloudConfig() CloudConfig {
	if c.Cloud == nil {
		return CloudConfig{Provider: ProviderOCI}
	}
	return *c.Cloud
}

// StorageConfig returns the storage section with defaults applied
func (c *Config) StorageConfig() StorageConfig {
	var s StorageConfig
	if c.Storage != nil {
		s = *c.Storage
	}
	if s.MultipartThresholdMB == 0 {
		s.MultipartThresholdMB = 128
	}
	if s.PartSizeMB == 0 {
		s.PartSizeMB = 10
	}
	if s.ParallelUploads == 0 {
		s.ParallelUploads = 3
	}
	if s.ListLimit == 0 {
		s.ListLimit = 1000
	}
	if s.ParquetCompression == "" {
		s.ParquetCompression = "snappy"
	}
	return s
}

// WarehouseConfig returns the warehouse section with pool defaults applied
func (c *Config) WarehouseConfig() WarehouseConfig {
	var w WarehouseConfig
	if c.Warehouse != nil {
		w = *c.Warehouse
	}
	if w.Driver == "" {
		w.Driver = DriverOracle
	}
	if w.PoolMin == 0 {
		w.PoolMin = 1
	}
	if w.PoolMax == 0 {
		w.PoolMax = 5
	}
	if w.PoolIncrement == 0 {
		w.PoolIncrement = 1
	}
	if w.ConnMaxLifetime == 0 {
		w.ConnMaxLifetime = time.Hour
	}
	return w
}
