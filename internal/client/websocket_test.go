// ABOUTME: Tests for the feed WebSocket client
// ABOUTME: Tests handshake, level delivery, and connection loss against httptest servers
package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/vumeter/internal/levelchan"
	"github.com/Resonate-Protocol/vumeter/internal/protocol"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/input"
)

// fakeFeed accepts one watcher, answers its hello and then runs script
func fakeFeed(t *testing.T, channels int, script func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var hello protocol.ClientHello
		_, data, err := conn.ReadMessage()
		if err != nil || protocol.Decode(data, protocol.TypeClientHello, &hello) != nil {
			return
		}
		conn.WriteJSON(protocol.Message{
			Type:    protocol.TypeServerHello,
			Payload: protocol.ServerHello{ServerID: "srv", Name: "studio", Version: 1, Channels: channels, SampleRate: 48000},
		})
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func quietLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func sendLevels(conn *websocket.Conn, seq uint64, levels ...float32) {
	conn.WriteJSON(protocol.Message{Type: protocol.TypeLevels, Payload: protocol.Levels{Seq: seq, Levels: levels}})
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{ServerAddr: "localhost:8928"}, nil)
	assert.Equal(t, protocol.Path, c.config.Path)
	assert.NotEmpty(t, c.config.ClientID)
}

func TestConnectReadsHello(t *testing.T) {
	addr := fakeFeed(t, 2, func(conn *websocket.Conn) { conn.ReadMessage() })

	c := NewClient(Config{ServerAddr: addr, Name: "test"}, quietLogger())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.Equal(t, "studio", c.Hello().Name)
	assert.Equal(t, 2, c.Hello().Channels)
}

func TestConnectFailureIsConfigError(t *testing.T) {
	c := NewClient(Config{ServerAddr: "127.0.0.1:1"}, quietLogger())
	err := c.Connect(context.Background())

	var cerr *input.ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "feed", cerr.Backend)
}

func TestConnectRejectsEmptyHello(t *testing.T) {
	addr := fakeFeed(t, 0, func(conn *websocket.Conn) {})

	c := NewClient(Config{ServerAddr: addr}, quietLogger())
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrBadHello)
}

func TestRunPushesLevels(t *testing.T) {
	addr := fakeFeed(t, 2, func(conn *websocket.Conn) {
		sendLevels(conn, 1, -10, -20)
		sendLevels(conn, 2, -11) // wrong width, skipped
		conn.WriteJSON(protocol.Message{Type: "other", Payload: struct{}{}})
		sendLevels(conn, 3, -30, -40)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(100 * time.Millisecond)
	})

	c := NewClient(Config{ServerAddr: addr}, quietLogger())
	require.NoError(t, c.Connect(context.Background()))

	producers, consumers := levelchan.NewSet(2, 8)
	err := c.Run(context.Background(), producers)

	var derr *input.DeviceError
	require.True(t, errors.As(err, &derr), "connection loss is a device error, got %v", err)

	v, ok := consumers[0].Pop()
	require.True(t, ok)
	assert.Equal(t, float32(-10), v)
	v, _ = consumers[0].Pop()
	assert.Equal(t, float32(-30), v)
	v, _ = consumers[1].Pop()
	assert.Equal(t, float32(-20), v)

	stats := c.Stats()
	assert.Equal(t, uint64(3), stats.Received)
	assert.Equal(t, uint64(4), stats.Pushed)
}

func TestRunDropsWhenFull(t *testing.T) {
	addr := fakeFeed(t, 1, func(conn *websocket.Conn) {
		for i := 0; i < 5; i++ {
			sendLevels(conn, uint64(i), float32(-i))
		}
		conn.Close()
	})

	c := NewClient(Config{ServerAddr: addr}, quietLogger())
	require.NoError(t, c.Connect(context.Background()))

	producers, consumers := levelchan.NewSet(1, 2)
	c.Run(context.Background(), producers)

	assert.Equal(t, 2, consumers[0].Len())
	v, _ := consumers[0].Pop()
	assert.Equal(t, float32(0), v, "oldest values are kept")
	assert.Equal(t, uint64(3), c.Stats().Dropped)
}

func TestRunStopsOnCancel(t *testing.T) {
	addr := fakeFeed(t, 1, func(conn *websocket.Conn) { conn.ReadMessage() })

	c := NewClient(Config{ServerAddr: addr}, quietLogger())
	require.NoError(t, c.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	producers, _ := levelchan.NewSet(1, 2)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, producers) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRunChecksChannelCount(t *testing.T) {
	addr := fakeFeed(t, 2, func(conn *websocket.Conn) { conn.ReadMessage() })

	c := NewClient(Config{ServerAddr: addr}, quietLogger())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	producers, _ := levelchan.NewSet(1, 2)
	assert.Error(t, c.Run(context.Background(), producers))
}
