package transformimages

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/normalization"
)

// Fit values for Resize.
const (
	FitInside = "inside"
	FitCover  = "cover"
)

var fits = normalization.NewEnumNormalizer("fit", map[string]string{
	"inside":  FitInside,
	"contain": FitInside,
	"cover":   FitCover,
	"crop":    FitCover,
}, FitInside)

// Transformation describes one output derived from a source image.
type Transformation struct {
	// Suffix is appended to the file name. Empty means the source file is replaced.
	Suffix string `yaml:"suffix,omitempty" json:"suffix,omitempty"`
	// Format is the output format; empty keeps the source format.
	Format  string  `yaml:"format,omitempty" json:"format,omitempty"`
	Resize  *Resize `yaml:"resize,omitempty" json:"resize,omitempty"`
	Quality int     `yaml:"quality,omitempty" json:"quality,omitempty"`
	// Matches is a path.Match pattern tested against the source path and base name.
	Matches string `yaml:"matches,omitempty" json:"matches,omitempty"`
	// Ops holds named operations such as grayscale or rotate.
	Ops map[string]any `yaml:",inline" json:"ops,omitempty"`
}

// Resize bounds the output size. A zero side follows the aspect ratio.
type Resize struct {
	Width  int    `yaml:"width,omitempty" json:"width,omitempty"`
	Height int    `yaml:"height,omitempty" json:"height,omitempty"`
	Fit    string `yaml:"fit,omitempty" json:"fit,omitempty"`
}

// UnmarshalYAML accepts `300`, `[300, 200]` and the mapping form.
func (r *Resize) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&r.Width)
	case yaml.SequenceNode:
		var dims []int
		if err := node.Decode(&dims); err != nil {
			return err
		}
		if len(dims) == 0 || len(dims) > 2 {
			return fmt.Errorf("resize expects [width] or [width, height], got %d values", len(dims))
		}
		r.Width = dims[0]
		if len(dims) == 2 {
			r.Height = dims[1]
		}
		return nil
	case yaml.MappingNode:
		type plain Resize
		if err := node.Decode((*plain)(r)); err != nil {
			return err
		}
		if r.Fit == "" {
			return nil
		}
		fit, err := fits.Parse(r.Fit)
		if err != nil {
			return err
		}
		r.Fit = fit
		return nil
	default:
		return fmt.Errorf("unsupported resize value")
	}
}

// normalizeFormat maps aliases to canonical format names.
func normalizeFormat(f string) string {
	f = strings.ToLower(strings.TrimPrefix(f, "."))
	if f == "jpeg" {
		return "jpg"
	}
	return f
}

// key is the canonical description used for cache lookups.
func (t Transformation) key(format string) ([]byte, error) {
	t.Format = format
	t.Matches = ""
	return json.Marshal(t)
}

// Decode reads the transformations attached to a page. It accepts a single mapping, a
// list of mappings, Transformation values, or nothing.
func Decode(v any) ([]Transformation, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if t {
			return nil, fmt.Errorf("expected transformation, got true")
		}
		return nil, nil
	case Transformation:
		return []Transformation{t}, nil
	case *Transformation:
		return []Transformation{*t}, nil
	case []Transformation:
		return t, nil
	}

	raw, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode transformations: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("decode transformations: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	doc := node.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var list []Transformation
		if err := doc.Decode(&list); err != nil {
			return nil, fmt.Errorf("decode transformations: %w", err)
		}
		return list, nil
	case yaml.MappingNode:
		var one Transformation
		if err := doc.Decode(&one); err != nil {
			return nil, fmt.Errorf("decode transformation: %w", err)
		}
		return []Transformation{one}, nil
	default:
		return nil, fmt.Errorf("expected transformation mapping or list")
	}
}
