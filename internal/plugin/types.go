package plugin

import "fmt"

// Type identifies the category of plugin.
type Type string

const (
	// TypeBundle groups several plugins behind one registration.
	TypeBundle Type = "bundle"

	// TypeProcessor rewrites pages (HTML, URLs, layouts).
	TypeProcessor Type = "processor"

	// TypeImage generates or transforms image assets.
	TypeImage Type = "image"
)

// IsValid returns true if the plugin type is recognized.
func (t Type) IsValid() bool {
	switch t {
	case TypeBundle, TypeProcessor, TypeImage:
		return true
	default:
		return false
	}
}

func (t Type) String() string { return string(t) }

// Error represents an error that occurred within a plugin.
type Error struct {
	PluginName string
	Operation  string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("plugin %s failed during %s: %v", e.PluginName, e.Operation, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new plugin error.
func NewError(pluginName, operation string, err error) *Error {
	return &Error{PluginName: pluginName, Operation: operation, Err: err}
}
