package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/chargepilot/internal/models"
)

func TestHubSendsInitAndProgress(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hub.SetInitDataProvider(func() interface{} {
		return map[string]bool{"active": false}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn)
		client.Register()
		go client.ReadPump()
		go client.WritePump()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var init Message
	require.NoError(t, conn.ReadJSON(&init))
	assert.Equal(t, MsgTypeInit, init.Type)
	assert.Equal(t, map[string]interface{}{"active": false}, init.Data)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	hub.OnProgress(context.Background(), models.ProgressEvent{Type: models.EventCheckpoint, CurrentPercentage: 61})

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg struct {
		Type string               `json:"type"`
		Data models.ProgressEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, MsgTypeProgress, msg.Type)
	assert.Equal(t, models.EventCheckpoint, msg.Data.Type)
	assert.Equal(t, 61, msg.Data.CurrentPercentage)
}

func TestBroadcastDoesNotBlockWithoutRunner(t *testing.T) {
	hub := NewHub(zap.NewNop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			hub.BroadcastMessage(MsgTypeProgress, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked")
	}
}
