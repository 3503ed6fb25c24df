package config

import "time"

// Default values.
const (
	DefaultCacheMaxAge = 30 * 24 * time.Hour

	DefaultSrc         = "./src"
	DefaultDest        = "_site"
	DefaultLocation    = "http://localhost/"
	DefaultPort        = 3000
	DefaultMetricsPath = "/metrics"
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Src == "" {
		c.Src = DefaultSrc
	}
	if c.Dest == "" {
		c.Dest = DefaultDest
	}
	if c.Location == "" {
		c.Location = DefaultLocation
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = DefaultMetricsPath
	}
}

// Example is the configuration written by Init.
func Example() *Config {
	enabled := true
	maxAge := DefaultCacheMaxAge
	return &Config{
		Src:      DefaultSrc,
		Dest:     DefaultDest,
		Location: "https://example.com/",
		Bundle:   BundleConfig{Includes: "_includes", Sitemap: &enabled},
		Picture:  PictureConfig{Name: "transformImages", Attribute: "transform-images"},
		TransformImages: TransformImagesConfig{
			Name:       "transformImages",
			Cache:      "_cache/transform_images.db",
			Extensions: []string{".jpg", ".jpeg", ".png", ".gif", ".webp"},
			MaxAge:     &maxAge,
		},
		Server: ServerConfig{Port: DefaultPort, LiveReload: &enabled, MetricsPath: DefaultMetricsPath},
		Data:   map[string]any{"title": "My site"},
	}
}
