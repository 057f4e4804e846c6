// Package config loads the dependency list and settings of a gitdeps
// project.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/thiagokokada/gitdeps/internal/credentials"
	"github.com/thiagokokada/gitdeps/internal/git/backend"
	"github.com/thiagokokada/gitdeps/internal/repository"
)

// DefaultBranch is tracked when a dependency names neither branch nor tag.
const DefaultBranch = "master"

// FileNames are searched, in order, when no config path is given.
var FileNames = []string{"gitdeps.yaml", "gitdeps.yml", "gitdeps.toml"}

type Auth struct {
	Type           string `yaml:"type" toml:"type"`
	Username       string `yaml:"username" toml:"username"`
	TokenEnv       string `yaml:"token_env" toml:"token_env"`
	PasswordEnv    string `yaml:"password_env" toml:"password_env"`
	SSHKeyPath     string `yaml:"ssh_key_path" toml:"ssh_key_path"`
	PassphraseEnv  string `yaml:"passphrase_env" toml:"passphrase_env"`
	KeyringService string `yaml:"keyring_service" toml:"keyring_service"`
}

type Dependency struct {
	Name string `yaml:"name" toml:"name"`
	// Folder is relative to Config.Root and defaults to Name.
	Folder  string `yaml:"folder" toml:"folder"`
	URL     string `yaml:"url" toml:"url"`
	Branch  string `yaml:"branch" toml:"branch"`
	Tag     string `yaml:"tag" toml:"tag"`
	SubPath string `yaml:"subpath" toml:"subpath"`
}

type Config struct {
	// Root holds every checkout. A relative root is resolved against the
	// directory of the config file.
	Root string `yaml:"root" toml:"root"`
	// Depth is the history depth of clones and fetches; 0 means full history.
	Depth        *int         `yaml:"depth" toml:"depth"`
	Auth         Auth         `yaml:"auth" toml:"auth"`
	Dependencies []Dependency `yaml:"dependencies" toml:"dependencies"`
}

// Env holds the settings read from the environment.
type Env struct {
	Config    string `env:"GITDEPS_CONFIG"`
	Root      string `env:"GITDEPS_ROOT"`
	LogLevel  string `env:"GITDEPS_LOG_LEVEL, default=info"`
	LogFormat string `env:"GITDEPS_LOG_FORMAT, default=text"`
	Token     string `env:"GITDEPS_TOKEN"`
}

// LoadEnv reads Env through lookuper, the process environment when nil.
func LoadEnv(ctx context.Context, lookuper envconfig.Lookuper) (Env, error) {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	var env Env
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &env, Lookuper: lookuper}); err != nil {
		return env, fmt.Errorf("processing environment: %w", err)
	}
	return env, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	depth := backend.DefaultDepth
	return Config{
		Root:  "deps",
		Depth: &depth,
		Auth:  Auth{Type: string(credentials.TypeNone)},
	}
}

// Find returns the first of FileNames present in dir.
func Find(dir string) (string, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no %s found in %s", strings.Join(FileNames, ", "), dir)
}

// Load parses a YAML or TOML config file, chosen by extension, applies
// defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config format %q", ext)
	}

	if cfg.Root == "" {
		cfg.Root = DefaultConfig().Root
	}
	if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
	}
	if cfg.Depth == nil {
		cfg.Depth = DefaultConfig().Depth
	}
	if cfg.Auth.Type == "" {
		cfg.Auth.Type = string(credentials.TypeNone)
	}
	for i := range cfg.Dependencies {
		d := &cfg.Dependencies[i]
		if d.Folder == "" {
			d.Folder = d.Name
		}
		if d.Branch == "" && d.Tag == "" {
			d.Branch = DefaultBranch
		}
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Depth != nil && *c.Depth < 0 {
		errs = append(errs, fmt.Errorf("depth must not be negative, got %d", *c.Depth))
	}
	seen := map[string]bool{}
	folders := map[string]string{}
	for i, d := range c.Dependencies {
		switch {
		case d.Name == "":
			errs = append(errs, fmt.Errorf("dependency[%d]: name is required", i))
			continue
		case seen[d.Name]:
			errs = append(errs, fmt.Errorf("dependency[%d]: duplicate name %q", i, d.Name))
		}
		seen[d.Name] = true
		if d.URL == "" {
			errs = append(errs, fmt.Errorf("dependency %q: url is required", d.Name))
		}
		if !filepath.IsLocal(d.Folder) {
			errs = append(errs, fmt.Errorf("dependency %q: folder %q must stay inside the root", d.Name, d.Folder))
		}
		folder := filepath.Clean(d.Folder)
		if other, ok := folders[folder]; ok {
			errs = append(errs, fmt.Errorf("dependency %q: folder %q is already used by %q", d.Name, d.Folder, other))
		}
		folders[folder] = d.Name
	}
	return errors.Join(errs...)
}

// ApplyEnv overrides file settings with the environment.
func (c *Config) ApplyEnv(env Env) {
	if env.Root != "" {
		c.Root = env.Root
	}
	if env.Token != "" {
		c.Auth = Auth{Type: string(credentials.TypeToken), TokenEnv: "GITDEPS_TOKEN"}
	}
}

// Select returns the named dependencies, or all of them when names is empty.
func (c Config) Select(names ...string) ([]Dependency, error) {
	if len(names) == 0 {
		return c.Dependencies, nil
	}
	var out []Dependency
	for _, name := range names {
		i := slices.IndexFunc(c.Dependencies, func(d Dependency) bool { return d.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("unknown dependency %q", name)
		}
		out = append(out, c.Dependencies[i])
	}
	return out, nil
}

func (c Config) Identity(d Dependency) repository.Identity {
	return repository.Identity{
		URL:     d.URL,
		Branch:  d.Branch,
		Tag:     d.Tag,
		Root:    c.Root,
		Folder:  d.Folder,
		SubPath: d.SubPath,
	}
}

// Credentials resolves the auth section into a credentials.Config, reading
// secrets from the environment variables it names.
func (c Config) Credentials(lookup func(string) (string, bool)) (credentials.Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	secret := func(name, what string) (string, error) {
		if name == "" {
			return "", nil
		}
		v, ok := lookup(name)
		if !ok {
			return "", fmt.Errorf("%s variable %s is not set", what, name)
		}
		return v, nil
	}

	a := c.Auth
	out := credentials.Config{
		Type:           credentials.Type(a.Type),
		Username:       a.Username,
		SSHKeyPath:     a.SSHKeyPath,
		KeyringService: a.KeyringService,
	}
	var err error
	if out.Token, err = secret(a.TokenEnv, "token"); err != nil {
		return out, err
	}
	if out.Password, err = secret(a.PasswordEnv, "password"); err != nil {
		return out, err
	}
	if out.SSHKeyPassword, err = secret(a.PassphraseEnv, "passphrase"); err != nil {
		return out, err
	}
	return out, nil
}
