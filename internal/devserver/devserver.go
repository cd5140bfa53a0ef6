// Package devserver serves build outputs from memory and tells connected
// pages over a websocket when stylesheets change.
package devserver

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/slices"

	"github.com/tain335/stylepack/internal/logger"
)

const (
	SocketPath = "/stylepack-socket"
	ClientPath = "/stylepack-client.js"

	MessageCSSUpdate = "css-update"
	MessageReload    = "reload"
	MessageErrors    = "errors"
	MessagePong      = "pong"
)

type Message struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type client struct {
	conn  *websocket.Conn
	mutex sync.Mutex
}

func (c *client) send(m Message, timeout time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteJSON(m)
}

type Server struct {
	timeout  time.Duration
	upgrader websocket.Upgrader

	clientsMutex sync.Mutex
	clients      []*client

	filesMutex sync.RWMutex
	files      map[string][]byte
}

func New(timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		timeout: timeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		files: make(map[string][]byte),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(SocketPath, s.socketHandler)
	mux.HandleFunc(ClientPath, s.clientHandler)
	mux.HandleFunc("/", s.resourceHandler)
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s.Handler()}
	errs := make(chan error, 1)
	go func() {
		logger.Infof("dev server listening on http://%s", addr)
		errs <- server.ListenAndServe()
	}()
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeClients()
		if err := server.Shutdown(shutdown); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Update replaces the served files, keyed by their path relative to the
// output directory, and notifies the pages. A rebuild that only changed
// stylesheets is sent as a css-update listing them; anything else
// reloads the pages.
func (s *Server) Update(files map[string][]byte) {
	s.filesMutex.Lock()
	var changed []string
	onlyStyles := true
	for name, content := range files {
		if old, ok := s.files[name]; ok && string(old) == string(content) {
			continue
		}
		changed = append(changed, name)
		if path.Ext(name) != ".css" && !isAsset(name) {
			onlyStyles = false
		}
	}
	for name := range s.files {
		if _, ok := files[name]; !ok {
			onlyStyles = false
		}
	}
	s.files = files
	s.filesMutex.Unlock()

	if len(changed) == 0 {
		return
	}
	if onlyStyles {
		s.broadcast(Message{Type: MessageCSSUpdate, Data: strings.Join(sortedStyles(changed), ",")})
		return
	}
	s.broadcast(Message{Type: MessageReload})
}

// Errors sends the build errors to the pages.
func (s *Server) Errors(texts []string) {
	s.broadcast(Message{Type: MessageErrors, Data: strings.Join(texts, "\n")})
}

func (s *Server) broadcast(m Message) {
	s.clientsMutex.Lock()
	clients := append([]*client(nil), s.clients...)
	s.clientsMutex.Unlock()
	for _, c := range clients {
		if err := c.send(m, s.timeout); err != nil {
			logger.Debug("dropping dev client", "err", err)
			s.removeClient(c)
			c.conn.Close()
		}
	}
}

func (s *Server) addClient(conn *websocket.Conn) *client {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	c := &client{conn: conn}
	s.clients = append(s.clients, c)
	return c
}

func (s *Server) removeClient(c *client) {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	for i, other := range s.clients {
		if other == c {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			return
		}
	}
}

func (s *Server) closeClients() {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.clients = nil
}

func (s *Server) socketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := s.addClient(conn)
	defer func() {
		s.removeClient(c)
		conn.Close()
	}()
	conn.SetReadLimit(1024 * 1024)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.timeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(message) == "ping" {
			if err := c.send(Message{Type: MessagePong}, s.timeout); err != nil {
				return
			}
		}
	}
}

func (s *Server) clientHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = w.Write([]byte(clientScript))
}

func (s *Server) resourceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}
	s.filesMutex.RLock()
	content, ok := s.files[name]
	if !ok && path.Ext(name) == "" {
		name = "index.html"
		content, ok = s.files[name]
	}
	s.filesMutex.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	if contentType := mime.TypeByExtension(path.Ext(name)); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(content)
	}
}

func isAsset(name string) bool {
	switch path.Ext(name) {
	case ".js", ".mjs", ".cjs", ".html", ".map":
		return false
	}
	return true
}

func sortedStyles(names []string) []string {
	var styles []string
	for _, n := range names {
		if path.Ext(n) == ".css" {
			styles = append(styles, n)
		}
	}
	slices.Sort(styles)
	return styles
}
