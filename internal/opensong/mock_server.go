package opensong

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// MockServer provides a configurable OpenSong mock (REST + websocket) for
// testing.
type MockServer struct {
	*httptest.Server

	mu       sync.Mutex
	slides   map[int]string // raw slide XML per slide id
	failures map[int]int    // failures before success per slide id
	requests map[int]int    // slide fetches seen per slide id

	conn      *websocket.Conn
	connClose chan struct{}

	// websocket handshakes to reject before accepting, and attempts seen.
	wsFailures int
	wsAttempts int

	upgrader websocket.Upgrader

	// Subscribed receives every subscribe frame a client sends.
	Subscribed chan string
}

// NewMockServer creates a mock OpenSong endpoint serving /ws and
// /presentation/slide/{id}.
func NewMockServer() *MockServer {
	m := &MockServer{
		slides:     make(map[int]string),
		failures:   make(map[int]int),
		requests:   make(map[int]int),
		Subscribed: make(chan string, 8),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.handleWS)
	mux.HandleFunc("/presentation/slide/", m.handleSlide)

	m.Server = httptest.NewServer(mux)
	return m
}

// Addr returns the host:port of the mock server.
func (m *MockServer) Addr() string {
	return strings.TrimPrefix(m.URL, "http://")
}

// SetSlide installs the raw XML returned for a slide id.
func (m *MockServer) SetSlide(id int, xmlDoc string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slides[id] = xmlDoc
}

// FailSlide makes the next n fetches of the given slide id return HTTP 503.
func (m *MockServer) FailSlide(id, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = n
}

// SlideRequests reports how many times a slide id has been fetched.
func (m *MockServer) SlideRequests(id int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[id]
}

// FailWS makes the next n websocket handshakes fail with HTTP 503.
func (m *MockServer) FailWS(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wsFailures = n
}

// WSAttempts reports how many websocket handshakes have been attempted.
func (m *MockServer) WSAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wsAttempts
}

// Push sends a text frame to the connected websocket client.
func (m *MockServer) Push(frame string) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("mock: no websocket client connected")
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// DropClient closes the current websocket connection server-side, simulating
// a remote close.
func (m *MockServer) DropClient() {
	m.mu.Lock()
	conn := m.conn
	closed := m.connClose
	m.conn = nil
	m.connClose = nil
	m.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if closed != nil {
		close(closed)
	}
}

func (m *MockServer) handleWS(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.wsAttempts++
	if m.wsFailures > 0 {
		m.wsFailures--
		m.mu.Unlock()
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	m.mu.Unlock()

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// First frame is the subscribe request.
	_, sub, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return
	}
	select {
	case m.Subscribed <- string(sub):
	default:
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(AckConnected)); err != nil {
		_ = conn.Close()
		return
	}

	closed := make(chan struct{})
	m.mu.Lock()
	m.conn = conn
	m.connClose = closed
	m.mu.Unlock()

	// Hold the connection open until DropClient or the client goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				m.mu.Lock()
				if m.conn == conn {
					m.conn = nil
					m.connClose = nil
					close(closed)
				}
				m.mu.Unlock()
				return
			}
		}
	}()
	<-closed
}

func (m *MockServer) handleSlide(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/presentation/slide/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "bad slide id", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.requests[id]++
	if m.failures[id] > 0 {
		m.failures[id]--
		m.mu.Unlock()
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	doc, ok := m.slides[id]
	m.mu.Unlock()

	if !ok {
		http.Error(w, "no such slide", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(doc))
}

// SlideXML builds a slide content document for tests.
func SlideXML(title string, authors []string, ccli string, verses ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><response><slide>`)
	if title != "" {
		fmt.Fprintf(&b, "<title>%s</title>", title)
	}
	for _, a := range authors {
		fmt.Fprintf(&b, "<author>%s</author>", a)
	}
	if ccli != "" {
		fmt.Fprintf(&b, "<ccli>%s</ccli>", ccli)
	}
	b.WriteString("<slides>")
	for i, v := range verses {
		fmt.Fprintf(&b, `<slide id="%d"><body>%s</body></slide>`, i+1, v)
	}
	b.WriteString("</slides></slide></response>")
	return b.String()
}

// StatusXML builds a websocket status frame for tests.
func StatusXML(running bool, slide int) string {
	r := 0
	if running {
		r = 1
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><status><presentation running="%d"/><slide itemnumber="%d"/></status>`, r, slide)
}
