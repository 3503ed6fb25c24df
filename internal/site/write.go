package site

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// write empties dest (unless KeepDest), writes every page and copies static files.
func (s *Site) write(ctx context.Context, st *buildState, report *Report) error {
	if !s.opts.KeepDest {
		if err := safeToEmpty(st.src, st.dest); err != nil {
			return err
		}
		if err := os.RemoveAll(st.dest); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "empty destination").WithContext(logfields.KeyDest, st.dest).Build()
		}
	}
	if err := os.MkdirAll(st.dest, 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "create destination").WithContext(logfields.KeyDest, st.dest).Build()
	}

	written := map[string]string{}
	for _, p := range st.pages.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if prev, dup := written[p.OutputPath]; dup {
			st.logger.Warn("Output path written twice; last page wins",
				logfields.Path(p.OutputPath), logfields.Page(p.String()), slog.String("previous", prev))
		}
		written[p.OutputPath] = p.String()
		if err := p.Flush(); err != nil {
			return errors.WrapError(err, errors.CategoryBuild, "render document").WithContext(logfields.KeyPage, p.String()).Build()
		}
		target, err := outputTarget(st.dest, p.OutputPath)
		if err != nil {
			return errors.WrapError(err, errors.CategoryBuild, "invalid output path").WithContext(logfields.KeyPage, p.String()).Build()
		}
		if err := writeFile(target, p.Content); err != nil {
			return err
		}
		if p.Asset {
			report.Assets++
		} else {
			report.Pages++
		}
	}

	for _, f := range st.static {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, dup := written[f.output]; dup {
			continue
		}
		target, err := outputTarget(st.dest, f.output)
		if err != nil {
			return errors.WrapError(err, errors.CategoryBuild, "invalid output path").WithContext(logfields.KeyPath, f.abs).Build()
		}
		if err := copyFile(f.abs, target); err != nil {
			return err
		}
		report.Copied++
	}
	return nil
}

// safeToEmpty refuses to delete a destination that is, or contains, the source.
func safeToEmpty(src, dest string) error {
	if dest == src || dest == string(filepath.Separator) || strings.HasPrefix(src, dest+string(filepath.Separator)) {
		return errors.ConfigError("refusing to empty destination that contains the source").
			WithContext(logfields.KeySrc, src).
			WithContext(logfields.KeyDest, dest).
			Build()
	}
	return nil
}

// outputTarget maps a site path to a file under dest. Paths that would resolve
// outside dest are rejected.
func outputTarget(dest, output string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(output))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("output path %q escapes the destination", output)
	}
	return target, nil
}

func writeFile(target string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "create output directory").WithContext(logfields.KeyPath, target).Build()
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "write output file").WithContext(logfields.KeyPath, target).Build()
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "open static file").WithContext(logfields.KeyPath, src).Build()
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "create output directory").WithContext(logfields.KeyPath, dst).Build()
	}
	out, err := os.Create(dst)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "create output file").WithContext(logfields.KeyPath, dst).Build()
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.WrapError(err, errors.CategoryFileSystem, "copy static file").WithContext(logfields.KeyPath, dst).Build()
	}
	return out.Close()
}
