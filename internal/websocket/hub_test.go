package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sppg/internal/event"
	"sppg/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastsEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { hub.ServeWs(c, uuid.New()) })
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(ctx, event.New(event.DeliveryDelivered, "d-1", map[string]interface{}{"portions_delivered": 180})))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got event.Event
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, event.DeliveryDelivered, got.Type)
	assert.Equal(t, "d-1", got.EntityID)
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub(nil, logger.Discard())

	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, hub.Publish(context.Background(), event.New(event.BatchStarted, "b", nil)))
	}
	assert.Error(t, hub.Publish(context.Background(), event.New(event.BatchStarted, "b", nil)), "full buffer drops instead of blocking")
}

func TestHubStopsAcceptingAfterShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { hub.ServeWs(c, uuid.New()) })
	srv := httptest.NewServer(r)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	live, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, hub.Clients())

	// Closing a client after shutdown must not wedge its read loop.
	require.NoError(t, live.Close())
	left := make(chan struct{})
	go func() {
		hub.leave(&Client{Hub: hub, UserID: uuid.New()})
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(2 * time.Second):
		t.Fatal("leave blocked after shutdown")
	}

	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "late clients are turned away: %v", err)
	assert.Equal(t, 0, hub.Clients())
}
