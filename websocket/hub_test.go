package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wingo/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func serve(t *testing.T, snapshot Snapshot) (*models.Hub, *websocket.Conn) {
	t.Helper()
	log := zap.NewNop().Sugar()
	hub := models.NewHub(log)
	done := make(chan struct{})
	go hub.Run(done)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, snapshot, log, w, r)
	}))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.Close()
		close(done)
	})
	return hub, conn
}

func read(t *testing.T, conn *websocket.Conn) models.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg models.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestServeWs_SnapshotThenEvents(t *testing.T) {
	open := models.Round{GameCode: "10001", Period: "20260211100010601", Status: models.StatusOpen}
	hub, conn := serve(t, func(context.Context) ([]models.Round, error) {
		return []models.Round{open}, nil
	})

	first := read(t, conn)
	assert.Equal(t, models.EventCurrentRound, first.Event)
	rounds, ok := first.Data.([]any)
	require.True(t, ok)
	require.Len(t, rounds, 1)
	assert.Equal(t, open.Period, rounds[0].(map[string]any)["period"])

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	hub.Publish(models.EventRoundLocked, map[string]any{"period": open.Period})

	next := read(t, conn)
	assert.Equal(t, models.EventRoundLocked, next.Event)
	assert.Equal(t, open.Period, next.Data.(map[string]any)["period"])
}

func TestServeWs_SnapshotFailure(t *testing.T) {
	_, conn := serve(t, func(context.Context) ([]models.Round, error) {
		return nil, errors.New("store down")
	})
	assert.Equal(t, "error", read(t, conn).Event)
}

func TestHub_UnregistersClosedClient(t *testing.T) {
	hub, conn := serve(t, func(context.Context) ([]models.Round, error) { return nil, nil })
	read(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := models.NewHub(zap.NewNop().Sugar())
	for i := 0; i < cap(hub.Broadcast)+10; i++ {
		hub.Publish(models.EventRoundOpened, i)
	}
	assert.Len(t, hub.Broadcast, cap(hub.Broadcast))

	var nilHub *models.Hub
	assert.NotPanics(t, func() { nilHub.Publish(models.EventRoundOpened, nil) })
}

func TestHub_StopReleasesClientsAndSenders(t *testing.T) {
	log := zap.NewNop().Sugar()
	hub := models.NewHub(log)
	done := make(chan struct{})
	go hub.Run(done)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, func(context.Context) ([]models.Round, error) { return nil, nil }, log, w, r)
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	read(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	close(done)
	select {
	case <-hub.Stopped():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Zero(t, hub.ClientCount())

	// the write pump closes the connection once its send channel is closed
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	// joining or leaving a stopped hub returns instead of blocking
	joined := make(chan bool, 1)
	go func() { joined <- hub.Join(&models.Client{Send: make(chan models.WSMessage, 1)}) }()
	select {
	case ok := <-joined:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Join blocked on a stopped hub")
	}

	left := make(chan struct{})
	go func() {
		hub.Leave(&models.Client{})
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("Leave blocked on a stopped hub")
	}

	// a client arriving after shutdown is turned away
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
}
