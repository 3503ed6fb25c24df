package picture

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxDensity is the highest pixel density a size token may request.
const MaxDensity = 4

// size is one requested width and the highest pixel density to generate for it.
type size struct {
	width   int
	density int
}

// request is the parsed attribute value, e.g. "avif webp jpg 300@2 600".
type request struct {
	sizes   []size
	formats []string
}

func parseRequest(value string) (request, error) {
	var req request
	for _, tok := range strings.Fields(value) {
		if tok[0] >= '0' && tok[0] <= '9' {
			s, err := parseSize(tok)
			if err != nil {
				return request{}, err
			}
			req.sizes = append(req.sizes, s)
			continue
		}
		req.formats = append(req.formats, normalizeFormat(tok))
	}
	return req, nil
}

func parseSize(tok string) (size, error) {
	w, d, hasDensity := strings.Cut(tok, "@")
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return size{}, fmt.Errorf("invalid width in %q", tok)
	}
	density := 1
	if hasDensity {
		density, err = strconv.Atoi(d)
		if err != nil || density < 1 {
			return size{}, fmt.Errorf("invalid density in %q", tok)
		}
		if density > MaxDensity {
			return size{}, fmt.Errorf("density in %q exceeds %d", tok, MaxDensity)
		}
	}
	return size{width: width, density: density}, nil
}

func normalizeFormat(f string) string {
	f = strings.ToLower(strings.TrimPrefix(f, "."))
	if f == "jpeg" {
		return "jpg"
	}
	return f
}

// mimeType is the value of <source type>.
func mimeType(format string) string {
	if format == "jpg" {
		return "image/jpeg"
	}
	return "image/" + format
}
