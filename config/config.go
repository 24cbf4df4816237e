package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/treefs/internal/util"
	"gopkg.in/yaml.v3"
)

// Bytes per MB
const MB = 1024 * 1024

// CLI log verbosity levels; higher is chattier
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// OpenPolicy decides which access modes open() grants
type OpenPolicy string

const (
	// OpenReadOnly grants only O_RDONLY opens
	OpenReadOnly OpenPolicy = "readonly"
	// OpenInverted grants every mode except O_RDONLY
	OpenInverted OpenPolicy = "inverted"
	// OpenPermissive grants every access mode
	OpenPermissive OpenPolicy = "permissive"
)

// Valid reports whether p is a known policy
func (p OpenPolicy) Valid() bool {
	switch p {
	case OpenReadOnly, OpenInverted, OpenPermissive:
		return true
	}
	return false
}

// StoreBackend selects the block device backing the node store
type StoreBackend string

const (
	MemoryBackend StoreBackend = "memory"
	FileBackend   StoreBackend = "file"
	BadgerBackend StoreBackend = "badger"
	S3Backend     StoreBackend = "s3"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultFsName = "treefs"
	DefaultName   = "treefs"
	DefaultLogLvl = util.InfoLevel

	// DefaultNameMax matches NAME_MAX on linux
	DefaultNameMax = 255

	DefaultFilePerm = 0o755
	DefaultDirPerm  = 0o755

	DefaultOpenPolicy   = OpenReadOnly
	DefaultWriteThrough = true

	// DefaultMaxWrite is the maximum write size per FUSE request
	DefaultMaxWrite = 1 * MB

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0

	// DefaultDirectIO determines whether to bypass the kernel page cache
	DefaultDirectIO = true

	DefaultBackend    = MemoryBackend
	DefaultBlockSize  = 4096
	DefaultBlockCount = 16384 // 64MB at the default block size
	DefaultS3Prefix   = "blocks/"
)

// StoreConfig selects and configures the block device behind the node store
type StoreConfig struct {
	Backend     StoreBackend // memory, file, badger or s3 (Default memory)
	ImagePath   string       // Disk image path for the file backend
	BadgerDir   string       // Database directory for the badger backend
	S3Bucket    string
	S3Prefix    string // Object key prefix for blocks (Default "blocks/")
	S3Region    string
	S3Endpoint  string // Optional endpoint override, i.e. a local S3-compatible server
	S3AccessKey string // Static credentials; the default AWS chain is used when empty
	S3SecretKey string
	BlockSize   int // Bytes per block including the trailing chain link (Default 4096)
	BlockCount  int // Total blocks on the volume (Default 16384)
}

// Config contains runtime configuration values for the filesystem.
type Config struct {
	MountOptions
	LogLvl util.LogLevel

	NameMax         int        // Longest allowed path segment in bytes (Default 255)
	DefaultFilePerm uint32     // Permission bits for new files (Default 0755)
	DefaultDirPerm  uint32     // Permission bits for new directories (Default 0755)
	OpenPolicy      OpenPolicy // Which access modes open() grants (Default readonly)
	WriteThrough    bool       // Persist file nodes after every write (Default true)

	// NOTE: Low-level FUSE config (strongly recommend defaults unless you really know what you're doing):

	MaxWrite     int     // Maximum write size per FUSE request (Default 1MB)
	AttrTimeout  float64 // Attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // Directory entry cache timeout in seconds (Default 1.0)
	DirectIO     bool    // Whether to bypass the kernel page cache (Default true)

	Store       StoreConfig
	MetricsAddr string // Listen address for the prometheus handler; empty disables it
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	FsName *string `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name   *string `yaml:"name,omitempty" json:"name,omitempty"`
	Debug  *bool   `yaml:"debug,omitempty" json:"debug,omitempty"`
	// AllowOther requires user_allow_other in /etc/fuse.conf for non-root mounts
	AllowOther *bool `yaml:"allow_other,omitempty" json:"allow_other,omitempty"`
	// LogLvl is the CLI verbosity between 1 (error) and 5 (trace)
	LogLvl *int `yaml:"verbose,omitempty" json:"verbose,omitempty"`

	NameMax         *int        `yaml:"name_max,omitempty" json:"name_max,omitempty"`
	DefaultFilePerm *uint32     `yaml:"default_file_perm,omitempty" json:"default_file_perm,omitempty"`
	DefaultDirPerm  *uint32     `yaml:"default_dir_perm,omitempty" json:"default_dir_perm,omitempty"`
	OpenPolicy      *OpenPolicy `yaml:"open_policy,omitempty" json:"open_policy,omitempty"`
	WriteThrough    *bool       `yaml:"write_through,omitempty" json:"write_through,omitempty"`

	MaxWrite     *int     `yaml:"max_write,omitempty" json:"max_write,omitempty"`
	AttrTimeout  *float64 `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout *float64 `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
	DirectIO     *bool    `yaml:"direct_io,omitempty" json:"direct_io,omitempty"`

	Backend     *StoreBackend `yaml:"backend,omitempty" json:"backend,omitempty"`
	ImagePath   *string       `yaml:"image_path,omitempty" json:"image_path,omitempty"`
	BadgerDir   *string       `yaml:"badger_dir,omitempty" json:"badger_dir,omitempty"`
	S3Bucket    *string       `yaml:"s3_bucket,omitempty" json:"s3_bucket,omitempty"`
	S3Prefix    *string       `yaml:"s3_prefix,omitempty" json:"s3_prefix,omitempty"`
	S3Region    *string       `yaml:"s3_region,omitempty" json:"s3_region,omitempty"`
	S3Endpoint  *string       `yaml:"s3_endpoint,omitempty" json:"s3_endpoint,omitempty"`
	S3AccessKey *string       `yaml:"s3_access_key,omitempty" json:"s3_access_key,omitempty"`
	S3SecretKey *string       `yaml:"s3_secret_key,omitempty" json:"s3_secret_key,omitempty"`
	BlockSize   *int          `yaml:"block_size,omitempty" json:"block_size,omitempty"`
	BlockCount  *int          `yaml:"block_count,omitempty" json:"block_count,omitempty"`

	MetricsAddr *string `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:          DefaultLogLvl,
		NameMax:         DefaultNameMax,
		DefaultFilePerm: DefaultFilePerm,
		DefaultDirPerm:  DefaultDirPerm,
		OpenPolicy:      DefaultOpenPolicy,
		WriteThrough:    DefaultWriteThrough,
		MaxWrite:        DefaultMaxWrite,
		AttrTimeout:     DefaultAttrTimeout,
		EntryTimeout:    DefaultEntryTimeout,
		DirectIO:        DefaultDirectIO,
		Store: StoreConfig{
			Backend:    DefaultBackend,
			S3Prefix:   DefaultS3Prefix,
			BlockSize:  DefaultBlockSize,
			BlockCount: DefaultBlockCount,
		},
	}
}

// NewConfig creates a Config from defaults with override applied on top.
// A nil override yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// VerboseToLogLevel converts CLI verbosity (1 error .. 5 trace) to a
// [util.LogLevel], clamping out-of-range values.
func VerboseToLogLevel(verbose int) util.LogLevel {
	verbose = min(max(verbose, ErrorVerbose), TraceVerbose)
	lvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return lvls[verbose-1]
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.AllowOther != nil {
		c.AllowOther = *override.AllowOther
	}
	if override.LogLvl != nil {
		c.LogLvl = VerboseToLogLevel(*override.LogLvl)
	}
	if override.NameMax != nil {
		c.NameMax = *override.NameMax
	}
	if override.DefaultFilePerm != nil {
		c.DefaultFilePerm = *override.DefaultFilePerm
	}
	if override.DefaultDirPerm != nil {
		c.DefaultDirPerm = *override.DefaultDirPerm
	}
	if override.OpenPolicy != nil {
		c.OpenPolicy = *override.OpenPolicy
	}
	if override.WriteThrough != nil {
		c.WriteThrough = *override.WriteThrough
	}
	if override.MaxWrite != nil {
		c.MaxWrite = *override.MaxWrite
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
	if override.DirectIO != nil {
		c.DirectIO = *override.DirectIO
	}
	if override.Backend != nil {
		c.Store.Backend = *override.Backend
	}
	if override.ImagePath != nil {
		c.Store.ImagePath = *override.ImagePath
	}
	if override.BadgerDir != nil {
		c.Store.BadgerDir = *override.BadgerDir
	}
	if override.S3Bucket != nil {
		c.Store.S3Bucket = *override.S3Bucket
	}
	if override.S3Prefix != nil {
		c.Store.S3Prefix = *override.S3Prefix
	}
	if override.S3Region != nil {
		c.Store.S3Region = *override.S3Region
	}
	if override.S3Endpoint != nil {
		c.Store.S3Endpoint = *override.S3Endpoint
	}
	if override.S3AccessKey != nil {
		c.Store.S3AccessKey = *override.S3AccessKey
	}
	if override.S3SecretKey != nil {
		c.Store.S3SecretKey = *override.S3SecretKey
	}
	if override.BlockSize != nil {
		c.Store.BlockSize = *override.BlockSize
	}
	if override.BlockCount != nil {
		c.Store.BlockCount = *override.BlockCount
	}
	if override.MetricsAddr != nil {
		c.MetricsAddr = *override.MetricsAddr
	}
}

// Validate checks the config for values the filesystem cannot run with
func (c *Config) Validate() error {
	if c.NameMax <= 0 {
		return fmt.Errorf("name_max must be positive, got %d", c.NameMax)
	}
	if !c.OpenPolicy.Valid() {
		return fmt.Errorf("unknown open_policy %q", c.OpenPolicy)
	}
	// a block must hold at least one payload byte besides its chain link
	if c.Store.BlockSize <= 8 {
		return fmt.Errorf("block_size must be greater than 8, got %d", c.Store.BlockSize)
	}
	if c.Store.BlockCount <= 0 {
		return fmt.Errorf("block_count must be positive, got %d", c.Store.BlockCount)
	}
	switch c.Store.Backend {
	case MemoryBackend:
	case FileBackend:
		if c.Store.ImagePath == "" {
			return fmt.Errorf("file backend requires image_path")
		}
	case BadgerBackend:
		if c.Store.BadgerDir == "" {
			return fmt.Errorf("badger backend requires badger_dir")
		}
	case S3Backend:
		if c.Store.S3Bucket == "" {
			return fmt.Errorf("s3 backend requires s3_bucket")
		}
		if (c.Store.S3AccessKey == "") != (c.Store.S3SecretKey == "") {
			return fmt.Errorf("s3_access_key and s3_secret_key must be set together")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}
