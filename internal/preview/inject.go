package preview

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
)

// maxInjectSize bounds how much of a response is buffered for script injection.
const maxInjectSize = 2 << 20

// injectScript adds the live reload script to HTML responses, before </body> when
// present and at the end otherwise.
func injectScript(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if !(strings.HasSuffix(p, "/") || strings.HasSuffix(p, ".html")) || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		inj := &injector{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(inj, r)
		inj.finish()
	})
}

type injector struct {
	http.ResponseWriter
	status      int
	buf         bytes.Buffer
	wroteHeader bool
	passthrough bool
}

func (i *injector) WriteHeader(code int) {
	i.status = code
	if i.passthrough {
		i.ResponseWriter.WriteHeader(code)
		i.wroteHeader = true
	}
}

func (i *injector) Write(data []byte) (int, error) {
	if !i.passthrough && i.buf.Len() == 0 {
		ct := i.Header().Get("Content-Type")
		if ct != "" && !strings.Contains(ct, "text/html") {
			i.startPassthrough()
		}
	}
	if !i.passthrough && i.buf.Len()+len(data) > maxInjectSize {
		i.startPassthrough()
		if i.buf.Len() > 0 {
			if _, err := i.ResponseWriter.Write(i.buf.Bytes()); err != nil {
				return 0, err
			}
			i.buf.Reset()
		}
	}
	if i.passthrough {
		return i.ResponseWriter.Write(data)
	}
	return i.buf.Write(data)
}

func (i *injector) startPassthrough() {
	i.passthrough = true
	i.Header().Del("Content-Length")
	i.ResponseWriter.WriteHeader(i.status)
	i.wroteHeader = true
}

func (i *injector) finish() {
	if i.passthrough {
		return
	}
	body := i.buf.Bytes()
	if i.status == http.StatusOK && len(body) > 0 {
		body = withScript(body)
	}
	i.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if !i.wroteHeader {
		i.ResponseWriter.WriteHeader(i.status)
	}
	_, _ = i.ResponseWriter.Write(body)
}

func withScript(body []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(body), []byte("</body>"))
	if idx < 0 {
		return append(body, Script...)
	}
	out := make([]byte, 0, len(body)+len(Script))
	out = append(out, body[:idx]...)
	out = append(out, Script...)
	return append(out, body[idx:]...)
}
