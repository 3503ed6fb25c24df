package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPlugin struct {
	metadata  Metadata
	installed int
}

func (m *mockPlugin) Metadata() Metadata { return m.metadata }

func (m *mockPlugin) Install(Host) error {
	m.installed++
	return nil
}

func newMockPlugin(name string) *mockPlugin {
	return &mockPlugin{metadata: Metadata{Name: name, Version: "v1.0.0", Type: TypeProcessor}}
}

func TestRegistryKeepsOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"bundle", "picture", "transform_images"} {
		require.NoError(t, r.Register(newMockPlugin(name)))
	}

	assert.Equal(t, []string{"bundle", "picture", "transform_images"}, r.Names())
	assert.Equal(t, 3, r.Count())
	assert.True(t, r.Has("picture"))
	assert.False(t, r.Has("sitemap"))
}

func TestRegistryReturnsSameValues(t *testing.T) {
	r := NewRegistry()
	p := newMockPlugin("picture")
	require.NoError(t, r.Register(p))

	got, err := r.Get("picture")
	require.NoError(t, err)
	assert.Same(t, p, got)
	assert.Same(t, p, r.List()[0])
}

func TestRegistryRejects(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&mockPlugin{metadata: Metadata{Version: "v1", Type: TypeImage}}))

	require.NoError(t, r.Register(newMockPlugin("picture")))
	assert.Error(t, r.Register(newMockPlugin("picture")), "duplicate names")

	_, err := r.Get("missing")
	assert.Error(t, err)
}

func TestRegistryListIsSnapshot(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newMockPlugin("a")))
	list := r.List()
	list[0] = nil
	assert.NotNil(t, r.List()[0])
}
