package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field names shared by the engine, plugins and CLI.
const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyPlugin     = "plugin"
	KeyPage       = "page"
	KeyURL        = "url"
	KeySrc        = "src"
	KeyDest       = "dest"
	KeyPath       = "path"
	KeyFormat     = "format"
	KeyCount      = "count"
	KeyCached     = "cached"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyRemoteAddr = "remote_addr"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr   { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr   { return slog.String(KeyStage, name) }
func Plugin(name string) slog.Attr  { return slog.String(KeyPlugin, name) }
func Page(path string) slog.Attr    { return slog.String(KeyPage, path) }
func URL(u string) slog.Attr        { return slog.String(KeyURL, u) }
func Src(dir string) slog.Attr      { return slog.String(KeySrc, dir) }
func Dest(dir string) slog.Attr     { return slog.String(KeyDest, dir) }
func Path(p string) slog.Attr       { return slog.String(KeyPath, p) }
func Format(f string) slog.Attr     { return slog.String(KeyFormat, f) }
func Count(n int) slog.Attr         { return slog.Int(KeyCount, n) }
func Cached(hit bool) slog.Attr     { return slog.Bool(KeyCached, hit) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

func Method(m string) slog.Attr     { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr     { return slog.Int(KeyStatus, code) }
func RemoteAddr(a string) slog.Attr { return slog.String(KeyRemoteAddr, a) }
