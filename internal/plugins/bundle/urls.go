package bundle

import (
	"context"
	"fmt"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/sitebuilder/internal/page"
	"git.home.luguber.info/inful/sitebuilder/internal/plugin"
)

// urls assigns URL and OutputPath to every HTML page. Pages with `draft: true` or
// `url: false` are dropped from the build.
type urls struct {
	pretty bool
}

func (u *urls) Metadata() plugin.Metadata {
	return partMetadata("url", "Slugified and pretty page URLs")
}

func (u *urls) Install(host plugin.Host) error {
	u.pretty = host.PrettyURLs()
	host.Preprocess([]string{".html"}, u.assign)
	return nil
}

func (u *urls) assign(ctx context.Context, pages []*page.Page, all *page.Set) error {
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.Asset {
			continue
		}
		if skip(p) {
			all.Remove(p)
			continue
		}
		url, err := u.resolve(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		p.URL = url
		p.OutputPath = outputFor(url)
	}
	return nil
}

func skip(p *page.Page) bool {
	if draft, _ := p.Data["draft"].(bool); draft {
		return true
	}
	if v, ok := p.Data["url"].(bool); ok && !v {
		return true
	}
	return false
}

func (u *urls) resolve(p *page.Page) (string, error) {
	switch v := p.Data["url"].(type) {
	case nil, bool:
	case string:
		if v == "" {
			return "", fmt.Errorf("empty url")
		}
		slash := trailingSlash(v)
		if !strings.HasPrefix(v, "/") {
			v = path.Join(path.Dir(p.Src.Path), v)
		}
		clean := path.Clean("/" + v)
		if clean != "/" {
			clean += slash
		}
		return clean, nil
	default:
		return "", fmt.Errorf("url must be a string, got %T", v)
	}

	srcPath := p.Src.Path
	if srcPath == "" {
		srcPath = p.OutputPath
	}
	dir, file := path.Split(srcPath)
	segments := []string{}
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if seg != "" {
			segments = append(segments, Slugify(seg))
		}
	}
	base := "/" + strings.Join(segments, "/")
	name := Slugify(strings.TrimSuffix(file, path.Ext(file)))
	if name == "index" || name == "" {
		return strings.TrimSuffix(base, "/") + "/", nil
	}
	if u.pretty {
		return path.Join(base, name) + "/", nil
	}
	return path.Join(base, name) + ".html", nil
}

func trailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return "/"
	}
	return ""
}

// outputFor maps a URL to the file that serves it.
func outputFor(url string) string {
	if strings.HasSuffix(url, "/") {
		return url + "index.html"
	}
	if path.Ext(url) == "" {
		return url + "/index.html"
	}
	return url
}

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// Slugify lower-cases s, strips diacritics and replaces every run of other
// characters with a single hyphen.
func Slugify(s string) string {
	decomposed, _, err := transform.String(transform.Chain(norm.NFD, stripMarks, norm.NFC), s)
	if err != nil {
		decomposed = s
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(decomposed) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// absoluteURL joins a site path onto the public location, keeping a trailing slash.
func absoluteURL(location, p string) string {
	clean := path.Clean("/" + p)
	if clean != "/" && strings.HasSuffix(p, "/") {
		clean += "/"
	}
	return strings.TrimSuffix(location, "/") + clean
}
