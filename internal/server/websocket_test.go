package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newHubServer(t *testing.T, allowedOrigins []string) (*Hub, string) {
	t.Helper()
	hub := NewHub(allowedOrigins, zap.NewNop())

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/ws", hub.HandleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.CloseAll)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	return hub, wsURL
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", want, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcastReachesClient(t *testing.T) {
	hub, wsURL := newHubServer(t, []string{"*"})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	waitForClients(t, hub, 1)

	hub.Broadcast("new_insight", map[string]string{"title": "Endpoint down"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event WSEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "new_insight", event.Type)
	payload, ok := event.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Endpoint down", payload["title"])
}

func TestHubBroadcastMultipleClients(t *testing.T) {
	hub, wsURL := newHubServer(t, []string{"*"})

	conn1, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn1.Close()
	conn2, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn2.Close()

	waitForClients(t, hub, 2)

	hub.Broadcast("action_suggested", map[string]string{"id": "act-1"})

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var event WSEvent
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, "action_suggested", event.Type)
	}
}

func TestHubRejectsDisallowedOrigin(t *testing.T) {
	_, wsURL := newHubServer(t, []string{"http://localhost:3000"})

	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHubAllowsConfiguredOrigin(t *testing.T) {
	hub, wsURL := newHubServer(t, []string{"http://localhost:3000"})

	header := http.Header{"Origin": []string{"http://localhost:3000"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	waitForClients(t, hub, 1)
}

func TestHubCloseAllDisconnectsClients(t *testing.T) {
	hub, wsURL := newHubServer(t, []string{"*"})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	waitForClients(t, hub, 1)
	hub.CloseAll()
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
