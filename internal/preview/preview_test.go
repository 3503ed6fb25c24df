package preview

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func okBuild(id string) BuildFunc {
	return func(context.Context) (*site.Report, error) {
		return &site.Report{BuildID: id, Outcome: "success"}, nil
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestWithScript(t *testing.T) {
	out := string(withScript([]byte("<html><body><p>x</p></BODY></html>")))
	assert.True(t, strings.HasPrefix(out, "<html><body><p>x</p><script>"))
	assert.True(t, strings.HasSuffix(out, "</script></BODY></html>"))

	out = string(withScript([]byte("<p>fragment</p>")))
	assert.Equal(t, "<p>fragment</p>"+Script, out)
}

func TestInjectScript(t *testing.T) {
	h := injectScript(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json.html":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"a":1}`)
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = io.WriteString(w, "<body>hi</body>")
		}
	}))

	rec := get(t, h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<body>hi"+Script+"</body>", rec.Body.String())
	assert.Equal(t, strconv.Itoa(rec.Body.Len()), rec.Header().Get("Content-Length"))

	rec = get(t, h, "/page.html")
	assert.Contains(t, rec.Body.String(), Script)

	rec = get(t, h, "/style.css")
	assert.Equal(t, "<body>hi</body>", rec.Body.String())

	rec = get(t, h, "/json.html")
	assert.Equal(t, `{"a":1}`, rec.Body.String())
}

func TestServerServesBuildWithLiveReload(t *testing.T) {
	dest := t.TempDir()
	writeFile(t, filepath.Join(dest, "index.html"), "<html><body><h1>Home</h1></body></html>")
	writeFile(t, filepath.Join(dest, "about", "index.html"), "<html><body>About</body></html>")
	writeFile(t, filepath.Join(dest, "style.css"), "body{}")

	s := New(Options{Src: t.TempDir(), Dest: dest, LiveReload: true}, okBuild("b1"))
	require.NoError(t, s.Rebuild(context.Background()))
	assert.Equal(t, "b1", s.LastReport().BuildID)

	h := s.Handler()
	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>Home</h1>"+Script+"</body>")

	rec = get(t, h, "/about/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), Script)

	rec = get(t, h, "/style.css")
	assert.Equal(t, "body{}", rec.Body.String())

	rec = get(t, h, "/missing/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerWithoutLiveReload(t *testing.T) {
	dest := t.TempDir()
	writeFile(t, filepath.Join(dest, "index.html"), "<body>Home</body>")

	s := New(Options{Dest: dest}, okBuild("b1"))
	require.NoError(t, s.Rebuild(context.Background()))
	h := s.Handler()

	rec := get(t, h, "/")
	assert.Equal(t, "<body>Home</body>", rec.Body.String())

	rec = get(t, h, LiveReloadPath)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerShowsBuildError(t *testing.T) {
	dest := t.TempDir()
	writeFile(t, filepath.Join(dest, "index.html"), "<body>stale</body>")

	fail := true
	build := func(context.Context) (*site.Report, error) {
		if fail {
			return nil, stderrors.New("layout <base.html> missing")
		}
		return &site.Report{BuildID: "ok"}, nil
	}
	s := New(Options{Dest: dest, LiveReload: true}, build)
	h := s.Handler()

	require.Error(t, s.Rebuild(context.Background()))
	assert.Nil(t, s.LastReport())
	rec := get(t, h, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Build failed")
	assert.Contains(t, rec.Body.String(), "layout &lt;base.html&gt; missing")
	assert.NotContains(t, rec.Body.String(), "stale")

	fail = false
	require.NoError(t, s.Rebuild(context.Background()))
	rec = get(t, h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stale")
}

func TestServerMetricsPath(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "sitebuilder_builds_total 1\n")
	})
	s := New(Options{Dest: t.TempDir(), MetricsPath: "/metrics", Metrics: metrics}, okBuild("b1"))

	rec := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sitebuilder_builds_total 1\n", rec.Body.String())
}

func TestRecoveryMiddleware(t *testing.T) {
	h := withRecovery(slogDiscard(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := get(t, h, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHubStreamsBuilds(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Broadcast("b1")
	hub.Broadcast("b1")
	hub.Broadcast("b2")

	var events []string
	for len(events) < 2 {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimSpace(line))
		}
	}
	assert.Equal(t, []string{`data: {"build":"b1"}`, `data: {"build":"b2"}`}, events)

	hub.Shutdown()
	_, err = io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, 0, hub.Clients())

	rec := get(t, hub, LiveReloadPath)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIgnoreFilter(t *testing.T) {
	root := t.TempDir()
	f := newIgnoreFilter(filepath.Join(root, "_site"), filepath.Join(root, "src", "_cache"), "")

	cases := map[string]bool{
		"src/index.md":                    false,
		"src/img/a.png":                   false,
		"_site":                           true,
		"_site/index.html":                true,
		"_sitemap.md":                     false,
		"src/_cache/transform_images.db":  true,
		"src/.git":                        true,
		"src/index.md~":                   true,
		"src/.index.md.swp":               true,
		"src/#index.md#":                  true,
		"src/transform_images.db-journal": true,
		"src/Thumbs.db":                   true,
	}
	for rel, want := range cases {
		assert.Equal(t, want, f.ignore(filepath.Join(root, filepath.FromSlash(rel))), rel)
	}
}

func TestDebouncerCollapsesBursts(t *testing.T) {
	reqs, trigger := newDebouncer(20 * time.Millisecond)
	for range 5 {
		trigger()
	}
	select {
	case <-reqs:
	case <-time.After(2 * time.Second):
		t.Fatal("no rebuild requested")
	}
	select {
	case <-reqs:
		t.Fatal("burst produced more than one request")
	case <-time.After(100 * time.Millisecond):
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRunRebuildsOnChange(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(src, "out")
	writeFile(t, filepath.Join(src, "index.md"), "# Home")
	writeFile(t, filepath.Join(dest, "index.html"), "<body>Home</body>")

	var builds atomic.Int32
	build := func(context.Context) (*site.Report, error) {
		n := builds.Add(1)
		return &site.Report{BuildID: fmt.Sprintf("b%d", n)}, nil
	}

	port := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Options{Src: src, Dest: dest, Host: "127.0.0.1", Port: port, LiveReload: true, Debounce: 20 * time.Millisecond, Logger: slogDiscard()}, build)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	base := "http://127.0.0.1:" + strconv.Itoa(port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(1), builds.Load())

	i := 0
	require.Eventually(t, func() bool {
		i++
		writeFile(t, filepath.Join(src, "index.md"), "# Home "+strconv.Itoa(i))
		return builds.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	before := builds.Load()
	writeFile(t, filepath.Join(dest, "other.html"), "<body>x</body>")
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, before, builds.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
