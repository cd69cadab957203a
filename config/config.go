package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
)

// FileName is looked up in the workspace root when no path is given.
const FileName = "sti.toml"

type Config struct {
	Log       LogConfig       `toml:"log"`
	Workspace WorkspaceConfig `toml:"workspace"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

type WorkspaceConfig struct {
	Extensions []string `toml:"extensions"`
	Exclude    []string `toml:"exclude"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Workspace: WorkspaceConfig{
			Extensions: []string{".sti"},
			Exclude:    []string{".git", "node_modules", "build"},
		},
	}
}

// Load reads path on top of the defaults. A missing file is not an error
// when path is the implicit default.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = FileName
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("STI_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("STI_LOG_FILE"); v != "" {
		c.Log.File = v
	}
}

func (c *Config) Validate() error {
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if len(c.Workspace.Extensions) == 0 {
		return fmt.Errorf("workspace.extensions must not be empty")
	}
	for _, ext := range c.Workspace.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("workspace.extensions: %q must start with a dot", ext)
		}
	}
	if _, err := c.ExcludeMatcher(); err != nil {
		return err
	}
	return nil
}

// HasExtension reports whether path is an sti document by extension.
func (c *Config) HasExtension(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range c.Workspace.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Matcher tests workspace paths against the exclude patterns.
type Matcher struct {
	globs []glob.Glob
}

func (c *Config) ExcludeMatcher() (*Matcher, error) {
	m := &Matcher{}
	for _, pattern := range c.Workspace.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("workspace.exclude: bad pattern %q: %w", pattern, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match reports whether rel, a slash separated path relative to the
// workspace root, or its base name is excluded.
func (m *Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	base := filepath.Base(rel)
	for _, g := range m.globs {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}
