package site

import (
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/page"
)

// dataFileNames are merged into every page below their directory.
var dataFileNames = []string{"_data.yml", "_data.yaml"}

// staticFile is copied to dest unchanged.
type staticFile struct {
	abs    string
	output string
}

// dataCascade resolves the merged _data values for a source directory.
type dataCascade struct {
	root  string
	cache map[string]map[string]any
}

func newDataCascade(root string) *dataCascade {
	return &dataCascade{root: root, cache: map[string]map[string]any{}}
}

// forDir returns the data for a slash directory rooted at the source ("/", "/blog").
// Parent values are applied first so children override them.
func (c *dataCascade) forDir(dir string) (map[string]any, error) {
	if d, ok := c.cache[dir]; ok {
		return d, nil
	}
	merged := map[string]any{}
	if dir != "/" {
		parent, err := c.forDir(path.Dir(dir))
		if err != nil {
			return nil, err
		}
		maps.Copy(merged, parent)
	}
	for _, name := range dataFileNames {
		file := filepath.Join(c.root, filepath.FromSlash(dir), name)
		raw, err := os.ReadFile(file)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "read data file").WithContext(logfields.KeyPath, file).Build()
		}
		var values map[string]any
		if err := yaml.Unmarshal(raw, &values); err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "parse data file").WithContext(logfields.KeyPath, file).Build()
		}
		maps.Copy(merged, values)
	}
	c.cache[dir] = merged
	return merged, nil
}

// ignored reports whether a slash path has a segment hidden from output.
func ignored(rel string) bool {
	for _, seg := range strings.Split(strings.Trim(rel, "/"), "/") {
		if strings.HasPrefix(seg, "_") || strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// load walks the source directory and fills the build state.
func (s *Site) load(st *buildState) error {
	info, err := os.Stat(st.src)
	if err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "source directory not found").
			Fatal().
			WithContext(logfields.KeySrc, s.opts.Src).
			Build()
	}
	if !info.IsDir() {
		return errors.ConfigError("source is not a directory").WithContext(logfields.KeySrc, s.opts.Src).Build()
	}

	cascade := newDataCascade(st.src)
	return filepath.WalkDir(st.src, func(abs string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return errors.WrapError(walkErr, errors.CategoryFileSystem, "walk source directory").WithContext(logfields.KeyPath, abs).Build()
		}
		if abs == st.src {
			return nil
		}
		if d.IsDir() && abs == st.dest {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(st.src, abs)
		if err != nil {
			return err
		}
		rel = "/" + filepath.ToSlash(rel)
		if ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		return s.loadFile(st, cascade, abs, rel)
	})
}

func (s *Site) loadFile(st *buildState, cascade *dataCascade, abs, rel string) error {
	ext := strings.ToLower(path.Ext(rel))
	loader := s.loaderFor(ext)
	isAsset := containsExt(s.assetExts, ext)
	if loader == nil && !isAsset {
		st.static = append(st.static, staticFile{abs: abs, output: rel})
		return nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "stat source file").WithContext(logfields.KeyPath, abs).Build()
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "read source file").WithContext(logfields.KeyPath, abs).Build()
	}
	inherited, err := cascade.forDir(path.Dir(rel))
	if err != nil {
		return err
	}
	src := page.SourceInfo{Path: rel, Ext: path.Ext(rel), Abs: abs, ModTime: info.ModTime()}

	if loader == nil {
		p := page.New(src)
		maps.Copy(p.Data, inherited)
		p.Content = raw
		p.Asset = true
		p.OutputPath = rel
		p.URL = rel
		st.pages.Add(p)
		return nil
	}

	p, err := loader.load(src, raw)
	if err != nil {
		return errors.WrapError(err, errors.CategoryBuild, "load page").
			Fatal().
			WithContext(logfields.KeyPage, rel).
			WithContext(logfields.KeyPlugin, loader.plugin).
			Build()
	}
	if p == nil {
		return nil
	}
	p.Src = src
	if p.Data == nil {
		p.Data = map[string]any{}
	}
	for k, v := range inherited {
		if _, own := p.Data[k]; !own {
			p.Data[k] = v
		}
	}
	if p.OutputPath == "" {
		p.OutputPath = strings.TrimSuffix(rel, path.Ext(rel)) + ".html"
	}
	if p.URL == "" {
		p.URL = p.OutputPath
	}
	st.pages.Add(p)
	return nil
}

func (s *Site) loaderFor(ext string) *loaderEntry {
	for i := range s.loaders {
		if containsExt(s.loaders[i].exts, ext) {
			return &s.loaders[i]
		}
	}
	return nil
}
