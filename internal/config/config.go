// Package config loads the sitebuilder YAML configuration file.
package config

import (
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "sitebuilder.yaml"

// Config is the complete configuration.
type Config struct {
	Src      string `yaml:"src"`
	Dest     string `yaml:"dest"`
	Location string `yaml:"location"`
	// UglyURLs writes /about.html instead of /about/index.html.
	UglyURLs bool `yaml:"ugly_urls,omitempty"`
	// KeepDest leaves stale files in dest between builds.
	KeepDest bool `yaml:"keep_dest,omitempty"`

	Bundle          BundleConfig          `yaml:"bundle"`
	Picture         PictureConfig         `yaml:"picture"`
	TransformImages TransformImagesConfig `yaml:"transform_images"`
	Server          ServerConfig          `yaml:"server"`
	// Data is exposed to every layout as .Site.
	Data map[string]any `yaml:"data,omitempty"`
}

// BundleConfig configures the page conventions bundle.
type BundleConfig struct {
	Includes string `yaml:"includes,omitempty"`
	Sitemap  *bool  `yaml:"sitemap,omitempty"`
}

// SitemapEnabled reports whether sitemap.xml is generated (default true).
func (b BundleConfig) SitemapEnabled() bool { return b.Sitemap == nil || *b.Sitemap }

// PictureConfig configures the picture plugin.
type PictureConfig struct {
	Name      string `yaml:"name,omitempty"`
	Attribute string `yaml:"attribute,omitempty"`
}

// TransformImagesConfig configures the image transform plugin.
type TransformImagesConfig struct {
	Name       string   `yaml:"name,omitempty"`
	Cache      string   `yaml:"cache,omitempty"`
	NoCache    bool     `yaml:"no_cache,omitempty"`
	Extensions []string `yaml:"extensions,omitempty"`
	// MaxAge evicts cache entries not used for this long; 0 keeps everything.
	MaxAge *time.Duration `yaml:"max_age,omitempty"`
}

// CacheMaxAge returns MaxAge, or DefaultCacheMaxAge when unset.
func (t TransformImagesConfig) CacheMaxAge() time.Duration {
	if t.MaxAge == nil {
		return DefaultCacheMaxAge
	}
	return *t.MaxAge
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	LiveReload  *bool  `yaml:"live_reload,omitempty"`
	MetricsPath string `yaml:"metrics_path,omitempty"`
}

// LiveReloadEnabled reports whether pages reload on rebuild (default true).
func (s ServerConfig) LiveReloadEnabled() bool { return s.LiveReload == nil || *s.LiveReload }

// Load reads configPath, expanding ${VAR} references after loading .env files.
// A missing file is not an error: the defaults describe a working site.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	cfg := Default()
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		slog.Debug("No configuration file, using defaults", logfields.Path(configPath))
		return cfg, nil
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext(logfields.KeyPath, configPath).
			Build()
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse config file").
			WithContext(logfields.KeyPath, configPath).
			Build()
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext(logfields.KeyPath, configPath).
			Build()
	}

	data, err := yaml.Marshal(Example())
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal example config").Build()
	}
	header := "# sitebuilder configuration. Values may reference ${ENV_VARS}.\n"
	if err := os.WriteFile(configPath, append([]byte(header), data...), 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write config file").
			WithContext(logfields.KeyPath, configPath).
			Build()
	}
	slog.Info("Example configuration written", logfields.Path(configPath))
	return nil
}
