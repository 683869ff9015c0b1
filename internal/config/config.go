// Package config loads the CLI configuration from an optional YAML file and
// the environment. Environment variables (and a .env file) win over the file,
// and flags applied by the caller win over both.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/sealnote/internal/platform"
)

// Environment variables read by Load.
const (
	EnvRoot              = "SEALNOTE_ROOT"
	EnvAdapter           = "SEALNOTE_ADAPTER"
	EnvLogin             = "SEALNOTE_LOGIN"
	EnvRequester         = "SEALNOTE_REQUESTER"
	EnvSigningKey        = "SEALNOTE_SIGNING_KEY"
	EnvKeyring           = "SEALNOTE_KEYRING"
	EnvKeyringPassphrase = "SEALNOTE_KEYRING_PASSPHRASE"
	EnvApprovalTimeout   = "SEALNOTE_APPROVAL_TIMEOUT"
	EnvReadOnly          = "SEALNOTE_READ_ONLY"
)

// FileName is the config file looked up under the data root when no path is given.
const FileName = "config.yaml"

// Config is the resolved CLI configuration.
type Config struct {
	Root              string        `yaml:"root"`
	Adapter           string        `yaml:"adapter"`
	Login             string        `yaml:"login"`
	Requester         string        `yaml:"requester"`
	SigningKey        string        `yaml:"signing_key"`
	Keyring           string        `yaml:"keyring"`
	KeyringPassphrase string        `yaml:"keyring_passphrase"`
	ApprovalTimeout   time.Duration `yaml:"approval_timeout"`
	ReadOnly          bool          `yaml:"read_only"`
}

// Default returns the configuration used when nothing is set.
func Default() (*Config, error) {
	root, err := platform.DefaultRoot()
	if err != nil {
		return nil, err
	}
	return &Config{
		Root:            root,
		Adapter:         platform.AdapterBolt,
		ApprovalTimeout: platform.DefaultApprovalTimeout,
	}, nil
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment. An empty path reads <root>/config.yaml if it exists. envFiles
// default to ".env"; missing env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, name := range envFiles {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
	}

	explicit := path != ""
	if !explicit {
		root := cfg.Root
		if v, ok := os.LookupEnv(EnvRoot); ok && v != "" {
			root = v
		}
		path = filepath.Join(root, FileName)
	}
	if err := cfg.readFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		EnvRoot:              &c.Root,
		EnvAdapter:           &c.Adapter,
		EnvLogin:             &c.Login,
		EnvRequester:         &c.Requester,
		EnvSigningKey:        &c.SigningKey,
		EnvKeyring:           &c.Keyring,
		EnvKeyringPassphrase: &c.KeyringPassphrase,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(EnvApprovalTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvApprovalTimeout, err)
		}
		c.ApprovalTimeout = d
	}
	if v, ok := os.LookupEnv(EnvReadOnly); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvReadOnly, err)
		}
		c.ReadOnly = b
	}
	return nil
}

// Validate reports settings no store can be opened with.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("config: root is empty")
	}
	if !slices.Contains(platform.Adapters, c.Adapter) {
		return fmt.Errorf("config: unknown adapter %q (want one of %v)", c.Adapter, platform.Adapters)
	}
	if c.ApprovalTimeout < 0 {
		return fmt.Errorf("config: negative approval timeout %s", c.ApprovalTimeout)
	}
	return nil
}

// KeyringPath returns the keyring file, defaulting to <root>/keyring.db.
func (c *Config) KeyringPath(root string) string {
	if c.Keyring != "" {
		return c.Keyring
	}
	return platform.KeyringPath(root)
}
