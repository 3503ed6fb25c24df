package config

import (
	"net/url"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// Validate checks the configuration for values the engine cannot work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Src) == "" {
		return errors.ValidationError("src must not be empty").Build()
	}
	if strings.TrimSpace(c.Dest) == "" {
		return errors.ValidationError("dest must not be empty").Build()
	}
	if filepath.Clean(c.Src) == filepath.Clean(c.Dest) {
		return errors.ValidationError("dest must differ from src").WithContext("src", c.Src).Build()
	}
	u, err := url.Parse(c.Location)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.ValidationError("location must be an absolute URL").WithContext("location", c.Location).Build()
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.ValidationError("server.port must be between 1 and 65535").WithContext("port", c.Server.Port).Build()
	}
	if !strings.HasPrefix(c.Server.MetricsPath, "/") {
		return errors.ValidationError("server.metrics_path must start with /").WithContext("metrics_path", c.Server.MetricsPath).Build()
	}
	if c.TransformImages.CacheMaxAge() < 0 {
		return errors.ValidationError("transform_images.max_age must not be negative").WithContext("max_age", c.TransformImages.CacheMaxAge().String()).Build()
	}
	for _, ext := range c.TransformImages.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return errors.ValidationError("transform_images.extensions entries must start with a dot").WithContext("extension", ext).Build()
		}
	}
	return nil
}
