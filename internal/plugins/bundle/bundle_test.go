package bundle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/page"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
	"git.home.luguber.info/inful/sitebuilder/internal/testutil/testutils"
)

func build(t *testing.T, opts site.Options, files map[string]string, bundleOpts ...Option) (string, error) {
	t.Helper()
	root := t.TempDir()
	opts.Src = filepath.Join(root, "src")
	opts.Dest = filepath.Join(root, "_site")
	testutils.WriteTree(t, opts.Src, files)
	_, err := site.New(opts).Use(New(bundleOpts...)).Build(context.Background())
	return opts.Dest, err
}

func readOut(t *testing.T, dest, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(b)
}

var siteFiles = map[string]string{
	"index.md":            "---\ntitle: Home\nlayout: base.html\n---\n# Hi\n",
	"Über Uns.md":         "# About us\n",
	"blog/post.md":        "---\nlayout: post.html\n---\nText\n",
	"blog/moved.html":     "---\nurl: /custom/\n---\n<p>moved</p>",
	"draft.md":            "---\ndraft: true\n---\nhidden\n",
	"_includes/base.html": "<html><head><title>{{ .Title }}</title></head><body>{{ .Content }}</body></html>",
	"_includes/post.html": "---\nlayout: base.html\n---\n<article>{{ .Content }}</article>",
	"style.css":           "body{}",
}

func TestNewDefaults(t *testing.T) {
	b := New()
	assert.Equal(t, Name, b.Metadata().Name)
	assert.NoError(t, b.Metadata().Validate())
	assert.Equal(t, DefaultIncludes, b.Options().Includes)
	assert.Len(t, b.Parts(), 5)
	assert.Len(t, New(WithoutSitemap()).Parts(), 4)
	assert.Equal(t, "layouts", New(WithIncludes("layouts")).Options().Includes)
}

func TestBuildPrettyURLsAndLayouts(t *testing.T) {
	dest, err := build(t, site.Options{}, siteFiles)
	require.NoError(t, err)

	index := readOut(t, dest, "index.html")
	assert.Contains(t, index, "<title>Home</title>")
	assert.Contains(t, index, `<body><h1 id="hi">Hi</h1>`)

	about := readOut(t, dest, "uber-uns/index.html")
	assert.Contains(t, about, "About us")

	post := readOut(t, dest, "blog/post/index.html")
	assert.Contains(t, post, "<body><article><p>Text</p>\n</article></body>")

	assert.Equal(t, "<p>moved</p>", readOut(t, dest, "custom/index.html"))
	assert.NoFileExists(t, filepath.Join(dest, "draft", "index.html"))
	assert.FileExists(t, filepath.Join(dest, "style.css"))
}

func TestBuildSitemap(t *testing.T) {
	dest, err := build(t, site.Options{Location: "https://example.com/docs"}, siteFiles)
	require.NoError(t, err)

	sm := readOut(t, dest, "sitemap.xml")
	assert.Contains(t, sm, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	assert.Contains(t, sm, "<loc>https://example.com/docs/</loc>")
	assert.Contains(t, sm, "<loc>https://example.com/docs/uber-uns/</loc>")
	assert.Contains(t, sm, "<loc>https://example.com/docs/custom/</loc>")
	assert.NotContains(t, sm, "draft")
	assert.Contains(t, sm, "<lastmod>")
}

func TestBuildWithoutSitemap(t *testing.T) {
	dest, err := build(t, site.Options{}, siteFiles, WithoutSitemap())
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dest, "sitemap.xml"))
}

func TestBuildUglyURLs(t *testing.T) {
	dest, err := build(t, site.Options{UglyURLs: true}, siteFiles)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "uber-uns.html"))
	assert.FileExists(t, filepath.Join(dest, "blog", "post.html"))
	assert.FileExists(t, filepath.Join(dest, "index.html"))
}

func TestBuildCustomIncludes(t *testing.T) {
	dest, err := build(t, site.Options{}, map[string]string{
		"index.md":           "---\nlayout: main.html\n---\nx\n",
		"_layouts/main.html": "<main>{{ .Content }}</main>",
	}, WithIncludes("_layouts"))
	require.NoError(t, err)
	assert.Equal(t, "<main><p>x</p>\n</main>", readOut(t, dest, "index.html"))
}

func TestBuildMissingLayout(t *testing.T) {
	_, err := build(t, site.Options{}, map[string]string{
		"index.md": "---\nlayout: nope.html\n---\nx\n",
	})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryBuild))
}

func TestBuildLayoutCycle(t *testing.T) {
	_, err := build(t, site.Options{}, map[string]string{
		"index.md":         "---\nlayout: a.html\n---\nx\n",
		"_includes/a.html": "---\nlayout: b.html\n---\n{{ .Content }}",
		"_includes/b.html": "---\nlayout: a.html\n---\n{{ .Content }}",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout chain too deep")
}

func TestBuildInvalidFrontMatter(t *testing.T) {
	_, err := build(t, site.Options{}, map[string]string{"index.md": "---\ntitle: x\n"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryBuild))
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello World":       "hello-world",
		"Über Uns":          "uber-uns",
		"  --Crème brûlée!": "creme-brulee",
		"snake_case":        "snake_case",
		"2024 Recap":        "2024-recap",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestOutputFor(t *testing.T) {
	assert.Equal(t, "/index.html", outputFor("/"))
	assert.Equal(t, "/a/index.html", outputFor("/a/"))
	assert.Equal(t, "/a/index.html", outputFor("/a"))
	assert.Equal(t, "/a.html", outputFor("/a.html"))
}

func TestResolveURL(t *testing.T) {
	u := &urls{pretty: true}
	mk := func(srcPath string, data map[string]any) *page.Page {
		p := page.New(page.SourceInfo{Path: srcPath})
		for k, v := range data {
			p.Data[k] = v
		}
		return p
	}

	got, err := u.resolve(mk("/blog/Index.md", nil))
	require.NoError(t, err)
	assert.Equal(t, "/blog/", got)

	got, err = u.resolve(mk("/My Blog/First Post.md", nil))
	require.NoError(t, err)
	assert.Equal(t, "/my-blog/first-post/", got)

	got, err = u.resolve(mk("/blog/a.md", map[string]any{"url": "b/"}))
	require.NoError(t, err)
	assert.Equal(t, "/blog/b/", got)

	got, err = u.resolve(mk("/a.md", map[string]any{"url": "/../../escaped.html"}))
	require.NoError(t, err)
	assert.Equal(t, "/escaped.html", got)

	got, err = u.resolve(mk("/blog/a.md", map[string]any{"url": "../../../up/"}))
	require.NoError(t, err)
	assert.Equal(t, "/up/", got)

	_, err = u.resolve(mk("/a.md", map[string]any{"url": 3}))
	require.Error(t, err)
}

func TestAbsoluteURL(t *testing.T) {
	assert.Equal(t, "https://x.org/", absoluteURL("https://x.org/", "/"))
	assert.Equal(t, "https://x.org/a/", absoluteURL("https://x.org/", "/a/"))
	assert.Equal(t, "https://x.org/a.html", absoluteURL("https://x.org", "a.html"))
}

func TestBuildKeepsURLsInsideDest(t *testing.T) {
	dest, err := build(t, site.Options{}, map[string]string{
		"evil.md": "---\nurl: /../../escaped.html\n---\nout\n",
	})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "escaped.html"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(filepath.Dir(dest)), "escaped.html"))
}

func TestLayoutReceivesSiteData(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dest := filepath.Join(root, "_site")
	testutils.WriteTree(t, src, map[string]string{
		"index.md":            "---\nlayout: base.html\n---\nHi\n",
		"_includes/base.html": "<title>{{ .Site.title }}</title>{{ .Content }}",
	})

	s := site.New(site.Options{Src: src, Dest: dest})
	s.Data("title", "Docs")
	_, err := s.Use(New(WithoutSitemap())).Build(context.Background())
	require.NoError(t, err)
	assert.Contains(t, readOut(t, dest, "index.html"), "<title>Docs</title>")
}
