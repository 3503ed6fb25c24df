// Package picture turns <img> elements marked with a transform attribute into
// responsive <picture> elements and requests the matching image variants.
package picture

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/page"
	"git.home.luguber.info/inful/sitebuilder/internal/plugin"
	"git.home.luguber.info/inful/sitebuilder/internal/util/sets"
	"git.home.luguber.info/inful/sitebuilder/internal/version"
)

// Defaults.
const (
	PluginName       = "picture"
	DefaultName      = "transformImages"
	DefaultAttribute = "transform-images"
)

// ImageExtensions are loaded as assets so variants can be attached to them.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// Options configures the plugin.
type Options struct {
	// Name is the asset data key read by the image transform plugin.
	Name string
	// Attribute marks the elements to rewrite.
	Attribute string
}

// Option mutates Options.
type Option func(*Options)

// WithName sets the asset data key.
func WithName(name string) Option { return func(o *Options) { o.Name = name } }

// WithAttribute sets the marker attribute.
func WithAttribute(attr string) Option { return func(o *Options) { o.Attribute = attr } }

// Plugin rewrites marked images in HTML pages.
type Plugin struct {
	opts Options
	host plugin.Host
}

// New returns the plugin with defaults applied, then opts.
func New(opts ...Option) *Plugin {
	o := Options{Name: DefaultName, Attribute: DefaultAttribute}
	for _, fn := range opts {
		fn(&o)
	}
	return &Plugin{opts: o}
}

// Metadata implements plugin.Plugin.
func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        PluginName,
		Version:     version.Version,
		Type:        plugin.TypeImage,
		Description: "Responsive <picture> elements for marked images",
	}
}

// Options returns the effective options.
func (p *Plugin) Options() Options { return p.opts }

// Install implements plugin.Plugin.
func (p *Plugin) Install(host plugin.Host) error {
	p.host = host
	host.LoadAssets(ImageExtensions...)
	host.Process([]string{".html"}, p.process)
	return nil
}

// target is an <img> to rewrite together with the attribute value that applies to it.
type target struct {
	img   *html.Node
	value string
}

// variants collects requested transformations per asset path, in request order.
type variants struct {
	order []string
	byKey map[string][]map[string]any
	seen  sets.Set[string]
}

func (v *variants) add(assetPath string, t map[string]any) {
	if v.byKey == nil {
		v.byKey = map[string][]map[string]any{}
		v.seen = sets.New[string]()
	}
	if !v.seen.Insert(assetPath + "|" + transformKey(t)) {
		return
	}
	if _, ok := v.byKey[assetPath]; !ok {
		v.order = append(v.order, assetPath)
	}
	v.byKey[assetPath] = append(v.byKey[assetPath], t)
}

func (p *Plugin) process(ctx context.Context, pages []*page.Page, all *page.Set) error {
	marker := []byte(p.opts.Attribute)
	var pending variants
	for _, pg := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if pg.Asset || !bytes.Contains(pg.Content, marker) {
			continue
		}
		doc, err := pg.Document()
		if err != nil {
			return errors.WrapError(err, errors.CategoryBuild, "parse html").WithContext(logfields.KeyPage, pg.String()).Build()
		}
		var targets []target
		collect(doc, p.opts.Attribute, "", &targets)
		for _, t := range targets {
			if err := rewrite(pg, t, &pending); err != nil {
				return errors.WrapError(err, errors.CategoryBuild, "invalid "+p.opts.Attribute+" value").
					WithContext(logfields.KeyPage, pg.String()).
					Build()
			}
		}
	}

	for _, assetPath := range pending.order {
		asset := all.FindByOutput(assetPath)
		if asset == nil || !asset.Asset {
			p.host.Logger().Warn("Image for picture element not found", logfields.Path(assetPath))
			continue
		}
		asset.Data[p.opts.Name] = merge(asset.Data[p.opts.Name], pending.byKey[assetPath])
	}
	return nil
}

// collect finds <img> elements that carry the attribute or inherit it from an
// ancestor. The attribute is removed from every element it appears on.
func collect(n *html.Node, attr, inherited string, out *[]target) {
	value := inherited
	if n.Type == html.ElementNode {
		if v, ok := takeAttr(n, attr); ok {
			value = v
		}
		if n.DataAtom == atom.Img && strings.TrimSpace(value) != "" {
			*out = append(*out, target{img: n, value: value})
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, attr, value, out)
	}
}

func rewrite(pg *page.Page, t target, pending *variants) error {
	req, err := parseRequest(t.value)
	if err != nil {
		return err
	}
	img := t.img
	src, _ := getAttr(img, "src")
	if src == "" || isRemote(src) {
		return nil
	}
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	ext := path.Ext(src)
	base := strings.TrimSuffix(src, ext)
	assetPath := resolve(pg.URL, src)

	formats := req.formats
	if len(formats) == 0 {
		formats = []string{normalizeFormat(ext)}
	}
	sizes, hasSizes := getAttr(img, "sizes")
	// Density descriptors only describe a single width; several widths need w descriptors.
	widthDescriptors := hasSizes || len(req.sizes) > 1

	var sources []*html.Node
	for i, format := range formats {
		var candidates []string
		emitted := sets.New[string]()
		if len(req.sizes) == 0 {
			candidates = append(candidates, base+"."+format)
			pending.add(assetPath, map[string]any{"format": format})
		}
		for _, s := range req.sizes {
			for d := 1; d <= s.density; d++ {
				w := s.width * d
				suffix := fmt.Sprintf("-%dw", w)
				file := base + suffix + "." + format
				if !emitted.Insert(file) {
					continue
				}
				descriptor := fmt.Sprintf("%dx", d)
				if widthDescriptors {
					descriptor = fmt.Sprintf("%dw", w)
				}
				candidates = append(candidates, file+" "+descriptor)
				pending.add(assetPath, map[string]any{
					"suffix": suffix,
					"format": format,
					"resize": map[string]any{"width": w},
				})
			}
		}
		srcset := strings.Join(candidates, ", ")

		if i < len(formats)-1 {
			source := &html.Node{Type: html.ElementNode, Data: "source", DataAtom: atom.Source}
			source.Attr = append(source.Attr,
				html.Attribute{Key: "type", Val: mimeType(format)},
				html.Attribute{Key: "srcset", Val: srcset},
			)
			if hasSizes {
				source.Attr = append(source.Attr, html.Attribute{Key: "sizes", Val: sizes})
			}
			sources = append(sources, source)
			continue
		}
		first, _, _ := strings.Cut(candidates[0], " ")
		setAttr(img, "src", first)
		if len(req.sizes) > 0 {
			setAttr(img, "srcset", srcset)
		}
	}

	parent := img.Parent
	if parent != nil && parent.DataAtom == atom.Picture {
		for _, s := range sources {
			parent.InsertBefore(s, img)
		}
		return nil
	}
	pic := &html.Node{Type: html.ElementNode, Data: "picture", DataAtom: atom.Picture}
	if parent != nil {
		parent.InsertBefore(pic, img)
		parent.RemoveChild(img)
	}
	for _, s := range sources {
		pic.AppendChild(s)
	}
	pic.AppendChild(img)
	return nil
}

// resolve maps an image reference in a page to the asset's site path.
func resolve(pageURL, src string) string {
	if strings.HasPrefix(src, "/") {
		return path.Clean(src)
	}
	dir := pageURL
	if !strings.HasSuffix(dir, "/") {
		dir = path.Dir(dir)
	}
	return path.Join("/", dir, src)
}

func isRemote(src string) bool {
	lower := strings.ToLower(src)
	for _, prefix := range []string{"http://", "https://", "//", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// merge appends requested transformations to whatever the asset already carries.
func merge(existing any, add []map[string]any) []any {
	var out []any
	switch v := existing.(type) {
	case nil:
	case []any:
		out = append(out, v...)
	case []map[string]any:
		for _, m := range v {
			out = append(out, m)
		}
	default:
		out = append(out, v)
	}
	seen := sets.New[string]()
	for _, v := range out {
		if m, ok := v.(map[string]any); ok {
			seen.Add(transformKey(m))
		}
	}
	for _, t := range add {
		if seen.Insert(transformKey(t)) {
			out = append(out, t)
		}
	}
	return out
}

func transformKey(t map[string]any) string {
	return fmt.Sprintf("%v|%v", t["suffix"], t["format"])
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func takeAttr(n *html.Node, key string) (string, bool) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return a.Val, true
		}
	}
	return "", false
}
