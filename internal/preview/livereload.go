package preview

import (
	"bufio"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// LiveReloadPath is where browsers subscribe to rebuild events.
const LiveReloadPath = "/_livereload"

// heartbeat keeps idle connections open through proxies.
const heartbeat = 30 * time.Second

// Hub fans out rebuild notifications to connected browsers over server-sent events.
type Hub struct {
	mu      sync.RWMutex
	nextID  int
	clients map[int]*client
	closed  bool
	last    string
}

type client struct {
	id   int
	ch   chan string
	done chan struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: map[int]*client{}}
}

// ServeHTTP streams events until the client disconnects or the hub shuts down.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c := &client{ch: make(chan string, 8), done: make(chan struct{})}
	h.mu.Lock()
	c.id = h.nextID
	h.nextID++
	h.clients[c.id] = c
	current := h.last
	h.mu.Unlock()
	defer h.remove(c.id)

	bw := bufio.NewWriter(w)
	send := func(s string) bool {
		if _, err := bw.WriteString(s); err != nil {
			slog.Debug("livereload write", "error", err)
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	first := ": connected\n\n"
	if current != "" {
		first += event(current)
	}
	if !send(first) {
		return
	}

	hb := time.NewTicker(heartbeat)
	defer hb.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case <-hb.C:
			if !send(": ping\n\n") {
				return
			}
		case id := <-c.ch:
			if !send(event(id)) {
				return
			}
		}
	}
}

func event(id string) string {
	return "data: {\"build\":\"" + id + "\"}\n\n"
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
	}
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast notifies every client of a new build. Repeated ids are ignored and
// clients that cannot keep up are dropped.
func (h *Hub) Broadcast(id string) {
	h.mu.Lock()
	if h.closed || id == "" || id == h.last {
		h.mu.Unlock()
		return
	}
	h.last = id
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- id:
		default:
			dropped++
			h.remove(c.id)
		}
	}
	slog.Debug("livereload broadcast", "build", id, "clients", len(snapshot), "dropped", dropped)
}

// Shutdown disconnects all clients and rejects new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*client{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
}

// Script reloads the page when a build newer than the one it was served from completes.
const Script = `<script>(() => {
  if (window.__sitebuilderLR) return;
  window.__sitebuilderLR = true;
  function connect() {
    const es = new EventSource("` + LiveReloadPath + `");
    let current = null;
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        if (current === null) { current = p.build; return; }
        if (p.build && p.build !== current) location.reload();
      } catch (_) {}
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();</script>`
