package devserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServesFilesFromMemory(t *testing.T) {
	s := New(time.Second)
	s.Update(map[string][]byte{
		"index.html":      []byte("<html></html>"),
		"main.js":         []byte("console.log(1)"),
		"assets/main.css": []byte(".a{}"),
	})
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	resp, body := get(t, server.URL+"/assets/main.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/css")
	assert.Equal(t, ".a{}", body)

	_, body = get(t, server.URL+"/")
	assert.Equal(t, "<html></html>", body)
	_, body = get(t, server.URL+"/some/route")
	assert.Equal(t, "<html></html>", body)

	resp, _ = get(t, server.URL+"/missing.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, body = get(t, server.URL+ClientPath)
	assert.Contains(t, body, SocketPath)
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + SocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var m Message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestBroadcastsUpdates(t *testing.T) {
	s := New(5 * time.Second)
	s.Update(map[string][]byte{"main.js": []byte("1"), "main.css": []byte(".a{}"), "x.png": []byte("x")})
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	assert.Equal(t, MessagePong, readMessage(t, conn).Type)

	s.Update(map[string][]byte{"main.js": []byte("1"), "main.css": []byte(".a{color:red}"), "x.png": []byte("y")})
	m := readMessage(t, conn)
	assert.Equal(t, MessageCSSUpdate, m.Type)
	assert.Equal(t, "main.css", m.Data)

	s.Update(map[string][]byte{"main.js": []byte("2"), "main.css": []byte(".a{color:red}"), "x.png": []byte("y")})
	assert.Equal(t, MessageReload, readMessage(t, conn).Type)

	s.Errors([]string{"a.css: unknown word"})
	m = readMessage(t, conn)
	assert.Equal(t, MessageErrors, m.Type)
	assert.Contains(t, m.Data, "unknown word")
}
