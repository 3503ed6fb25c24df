package normalization

import "fmt"

// EnumNormalizer is a Normalizer whose errors name the setting being parsed.
type EnumNormalizer[T comparable] struct {
	n    *Normalizer[T]
	name string
}

// NewEnumNormalizer returns a normalizer for the setting called name.
func NewEnumNormalizer[T comparable](name string, values map[string]T, fallback T) *EnumNormalizer[T] {
	return &EnumNormalizer[T]{n: NewNormalizer(values, fallback), name: name}
}

// Normalize returns the value for raw, or the fallback.
func (e *EnumNormalizer[T]) Normalize(raw string) T { return e.n.Normalize(raw) }

// Parse converts raw, or returns an error naming the setting. Empty input yields
// the fallback.
func (e *EnumNormalizer[T]) Parse(raw string) (T, error) {
	if clean(raw) == "" {
		return e.n.fallback, nil
	}
	v, err := e.n.NormalizeWithError(raw)
	if err != nil {
		return v, fmt.Errorf("invalid %s: %w", e.name, err)
	}
	return v, nil
}

// Values lists the accepted spellings for help output.
func (e *EnumNormalizer[T]) Values() []string { return e.n.Keys() }
