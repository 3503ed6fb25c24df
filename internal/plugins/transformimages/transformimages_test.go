package transformimages

import (
	"bytes"
	"context"
	"database/sql"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/imagecache"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

type countingRecorder struct {
	metrics.NoopRecorder
	mu     sync.Mutex
	hits   int
	misses int
}

func (r *countingRecorder) ObserveImageTransform(_ string, _ time.Duration, cached bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached {
		r.hits++
	} else {
		r.misses++
	}
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func imageSize(t *testing.T, path string) (int, int, string) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width, cfg.Height, format
}

type fixture struct {
	src, dest string
}

func newFixture(t *testing.T, data string) fixture {
	t.Helper()
	root := t.TempDir()
	fx := fixture{src: filepath.Join(root, "src"), dest: filepath.Join(root, "_site")}
	writeFile(t, filepath.Join(fx.src, "img", "photo.png"), pngBytes(t, 400, 200))
	writeFile(t, filepath.Join(fx.src, "img", "_data.yml"), []byte(data))
	return fx
}

func (fx fixture) build(rec metrics.Recorder, opts ...Option) error {
	s := site.New(site.Options{Src: fx.src, Dest: fx.dest}).WithRecorder(rec).Use(New(opts...))
	_, err := s.Build(context.Background())
	return err
}

func TestBuildInPlaceAndVariants(t *testing.T) {
	fx := newFixture(t, `
transformImages:
  - format: jpg
  - suffix: -100w
    resize: 100
  - suffix: -box
    format: gif
    resize: { width: 50, height: 50 }
`)
	require.NoError(t, fx.build(nil, WithCachePath("")))

	assert.NoFileExists(t, filepath.Join(fx.dest, "img", "photo.png"))

	w, h, format := imageSize(t, filepath.Join(fx.dest, "img", "photo.jpg"))
	assert.Equal(t, [3]any{400, 200, "jpeg"}, [3]any{w, h, format})

	w, h, format = imageSize(t, filepath.Join(fx.dest, "img", "photo-100w.png"))
	assert.Equal(t, [3]any{100, 50, "png"}, [3]any{w, h, format})

	w, h, format = imageSize(t, filepath.Join(fx.dest, "img", "photo-box.gif"))
	assert.Equal(t, [3]any{50, 25, "gif"}, [3]any{w, h, format})
}

func TestBuildKeepsOriginalWithOnlySuffixedVariants(t *testing.T) {
	fx := newFixture(t, "transformImages:\n  suffix: -small\n  resize: [40]\n")
	require.NoError(t, fx.build(nil, WithCachePath("")))

	w, _, _ := imageSize(t, filepath.Join(fx.dest, "img", "photo.png"))
	assert.Equal(t, 400, w)
	w, _, _ = imageSize(t, filepath.Join(fx.dest, "img", "photo-small.png"))
	assert.Equal(t, 40, w)
}

func TestBuildUsesCacheOnSecondBuild(t *testing.T) {
	fx := newFixture(t, "transformImages:\n  - suffix: -100w\n    resize: 100\n  - suffix: -200w\n    resize: 200\n")
	store, err := imagecache.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	rec := &countingRecorder{}
	require.NoError(t, fx.build(rec, WithStore(store)))
	assert.Equal(t, 0, rec.hits)
	assert.Equal(t, 2, rec.misses)

	require.NoError(t, fx.build(rec, WithStore(store)))
	assert.Equal(t, 2, rec.hits)
	assert.Equal(t, 2, rec.misses)

	w, _, _ := imageSize(t, filepath.Join(fx.dest, "img", "photo-200w.png"))
	assert.Equal(t, 200, w)
}

func TestBuildPrunesUnusedCacheEntries(t *testing.T) {
	fx := newFixture(t, "transformImages:\n  suffix: -100w\n  resize: 100\n")
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	store, err := imagecache.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Put(t.Context(), "stale", "png", []byte{1}))
	require.NoError(t, store.Close())
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE transforms SET used_at = 0")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	require.NoError(t, fx.build(nil, WithCachePath(dbPath), WithMaxAge(time.Hour)))

	store, err = imagecache.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	_, ok, err := store.Get(t.Context(), "stale")
	require.NoError(t, err)
	assert.False(t, ok)
	n, err := store.Len(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuildDefaultCacheFileUnderSource(t *testing.T) {
	fx := newFixture(t, "transformImages:\n  suffix: -x\n  resize: 10\n")
	require.NoError(t, fx.build(nil))
	assert.FileExists(t, filepath.Join(fx.src, filepath.FromSlash(DefaultCachePath)))
	assert.NoDirExists(t, filepath.Join(fx.dest, "_cache"))
}

func TestBuildUnsupportedFormat(t *testing.T) {
	fx := newFixture(t, "transformImages:\n  format: avif\n")
	err := fx.build(nil, WithCachePath(""))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryImage))
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestBuildMatches(t *testing.T) {
	fx := newFixture(t, "transformImages:\n  - suffix: -a\n    matches: \"*.jpg\"\n  - suffix: -b\n    matches: \"/img/*.png\"\n")
	require.NoError(t, fx.build(nil, WithCachePath("")))
	assert.NoFileExists(t, filepath.Join(fx.dest, "img", "photo-a.png"))
	assert.FileExists(t, filepath.Join(fx.dest, "img", "photo-b.png"))
}

func TestBuildOpsAndCustomFunctions(t *testing.T) {
	fx := newFixture(t, "transformImages:\n  - suffix: -r\n    rotate: 90\n  - suffix: -c\n    crop10: true\n")
	require.NoError(t, fx.build(nil, WithCachePath(""), WithFunction("crop10", func(img image.Image, _ any) (image.Image, error) {
		return img.(interface {
			SubImage(image.Rectangle) image.Image
		}).SubImage(image.Rect(0, 0, 10, 10)), nil
	})))

	w, h, _ := imageSize(t, filepath.Join(fx.dest, "img", "photo-r.png"))
	assert.Equal(t, [2]int{200, 400}, [2]int{w, h})
	w, h, _ = imageSize(t, filepath.Join(fx.dest, "img", "photo-c.png"))
	assert.Equal(t, [2]int{10, 10}, [2]int{w, h})
}

func TestBuildUnknownOperation(t *testing.T) {
	fx := newFixture(t, "transformImages:\n  suffix: -x\n  sparkle: true\n")
	err := fx.build(nil, WithCachePath(""))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryImage))
}

func TestDecode(t *testing.T) {
	list, err := Decode(map[string]any{"suffix": "-a", "format": "webp", "resize": []any{300, 200}, "grayscale": true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "-a", list[0].Suffix)
	assert.Equal(t, "webp", list[0].Format)
	assert.Equal(t, &Resize{Width: 300, Height: 200}, list[0].Resize)
	assert.Equal(t, map[string]any{"grayscale": true}, list[0].Ops)

	list, err = Decode([]map[string]any{{"suffix": "-1"}, {"suffix": "-2", "resize": map[string]any{"width": 10, "fit": "cover"}}})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, &Resize{Width: 10, Fit: FitCover}, list[1].Resize)

	list, err = Decode(map[string]any{"resize": map[string]any{"width": 10, "height": 5, "fit": "Crop"}})
	require.NoError(t, err)
	assert.Equal(t, &Resize{Width: 10, Height: 5, Fit: FitCover}, list[0].Resize)

	_, err = Decode(map[string]any{"resize": map[string]any{"width": 10, "fit": "stretch"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid fit")

	list, err = Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = Decode(false)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = Decode(Transformation{Suffix: "-t"})
	require.NoError(t, err)
	assert.Equal(t, []Transformation{{Suffix: "-t"}}, list)

	_, err = Decode("nope")
	require.Error(t, err)
}

func TestResize(t *testing.T) {
	src := testImage(400, 200)

	cases := []struct {
		name string
		r    *Resize
		w, h int
	}{
		{"nil", nil, 400, 200},
		{"width", &Resize{Width: 100}, 100, 50},
		{"height", &Resize{Height: 50}, 100, 50},
		{"inside box", &Resize{Width: 100, Height: 100}, 100, 50},
		{"no enlargement", &Resize{Width: 800}, 400, 200},
		{"cover", &Resize{Width: 100, Height: 100, Fit: FitCover}, 100, 100},
		{"cover clamps", &Resize{Width: 500, Height: 500, Fit: FitCover}, 200, 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := resize(src, tc.r).Bounds()
			assert.Equal(t, tc.w, b.Dx())
			assert.Equal(t, tc.h, b.Dy())
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	img := testImage(20, 10)
	for _, format := range []string{"jpg", "png", "gif", "webp"} {
		t.Run(format, func(t *testing.T) {
			out, err := encode(img, format, 0)
			require.NoError(t, err)
			decoded, err := decode(out)
			require.NoError(t, err)
			assert.Equal(t, 20, decoded.Bounds().Dx())
		})
	}
	_, err := encode(img, "avif", 0)
	require.Error(t, err)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("JPEG"))
	assert.True(t, Supported(".webp"))
	assert.False(t, Supported("avif"))
}

func TestNewDefaults(t *testing.T) {
	p := New()
	assert.NoError(t, p.Metadata().Validate())
	assert.Equal(t, DefaultName, p.Options().Name)
	assert.Equal(t, DefaultCachePath, p.Options().CachePath)
	assert.Equal(t, DefaultExtensions, p.Options().Extensions)
	assert.Equal(t, DefaultMaxAge, p.Options().MaxAge)
	assert.Zero(t, New(WithMaxAge(0)).Options().MaxAge)
}
