// Package plugin defines how behaviour is registered with the site engine.
//
// A plugin is installed once, at registration time. Installing means calling back
// into the Host to register loaders and processors; the work itself happens later,
// when the site is built.
package plugin

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/page"
)

// Plugin is a unit of behaviour registered with the engine.
type Plugin interface {
	// Metadata returns the plugin's identity.
	Metadata() Metadata

	// Install registers the plugin's loaders and processors on the host.
	Install(host Host) error
}

// Metadata describes a plugin's identity.
type Metadata struct {
	Name        string
	Version     string
	Type        Type
	Description string
}

// String returns a human-readable representation of the plugin metadata.
func (m Metadata) String() string {
	return fmt.Sprintf("%s@%s (%s)", m.Name, m.Version, m.Type)
}

// Validate checks if the plugin metadata is valid.
func (m Metadata) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("plugin name is required")
	}
	if m.Version == "" {
		return fmt.Errorf("plugin version is required")
	}
	if !m.Type.IsValid() {
		return fmt.Errorf("invalid plugin type: %s", m.Type)
	}
	return nil
}

// Loader turns a source file into a page. Returning a nil page skips the file.
type Loader func(src page.SourceInfo, raw []byte) (*page.Page, error)

// ProcessFunc mutates the selected pages. all is the whole build and may be extended.
type ProcessFunc func(ctx context.Context, pages []*page.Page, all *page.Set) error

// Host is the engine surface available to plugins during Install.
type Host interface {
	Src() string
	Dest() string
	Location() string
	PrettyURLs() bool
	Logger() *slog.Logger
	Recorder() metrics.Recorder

	// LoadPages routes files with the given extensions through loader.
	LoadPages(exts []string, loader Loader)
	// LoadAssets loads files with the given extensions as binary pages instead of copying them.
	LoadAssets(exts ...string)
	// Preprocess and Process register work on pages selected by output extension.
	// Both run in registration order.
	Preprocess(exts []string, fn ProcessFunc)
	Process(exts []string, fn ProcessFunc)
	// Data sets a site-wide value visible to every page.
	Data(key string, value any)
	// SiteData returns the site-wide values.
	SiteData() map[string]any
}
