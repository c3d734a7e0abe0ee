package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecost/internal/cache/memory"
	"github.com/alanyoungcy/tradecost/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	var v map[string]any
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestHub_RelaysBusMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewSignalBus(0)
	hub := NewHub(bus, Config{
		Mode: "live",
		Initial: func() []Envelope {
			return []Envelope{{Channel: domain.ChannelEstimate, Data: json.RawMessage(`{"status":"ok"}`)}}
		},
	}, nil, testLogger())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readFrame(t, conn)
	assert.Equal(t, "hello", hello["type"])
	assert.Equal(t, "live", hello["mode"])

	initial := readFrame(t, conn)
	assert.Equal(t, domain.ChannelEstimate, initial["channel"])

	require.NoError(t, bus.Publish(ctx, domain.ChannelBook, []byte(`{"best_bid":99}`)))
	frame := readFrame(t, conn)
	assert.Equal(t, domain.ChannelBook, frame["channel"])
	assert.Equal(t, map[string]any{"best_bid": 99.0}, frame["data"])

	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(memory.NewSignalBus(0), Config{}, nil, testLogger())
	errc := make(chan error, 1)
	go func() { errc <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	readFrame(t, conn)

	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestClient_Subscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{domain.ChannelEstimate: true}}
	assert.True(t, c.isSubscribed(domain.ChannelEstimate))
	assert.False(t, c.isSubscribed(domain.ChannelBook))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"ch:*"}})
	assert.True(t, c.isSubscribed(domain.ChannelBook))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:*", domain.ChannelEstimate}})
	assert.False(t, c.isSubscribed(domain.ChannelBook))
	assert.False(t, c.isSubscribed(domain.ChannelEstimate))
}
