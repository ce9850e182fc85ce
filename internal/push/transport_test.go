package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// wsURL converts an httptest server URL to the websocket scheme.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testConfig(url string) Config {
	cfg := DefaultConfig(url)
	cfg.MinBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 50 * time.Millisecond

	return cfg
}

// TestTransportDeliversFrames asserts inbound frames reach the Messages
// channel.
func TestTransportDeliversFrames(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			require.NoError(t, err)
			defer conn.Close()

			frame, _ := json.Marshal(Message{
				Type:   TypeWake,
				TaskID: "t1",
				SentAt: time.Now().UnixMilli(),
			})
			require.NoError(t, conn.WriteMessage(
				websocket.TextMessage, frame,
			))

			// Hold the connection open until the client hangs up.
			_, _, _ = conn.ReadMessage()
		},
	))
	defer srv.Close()

	tr := NewTransport(testConfig(wsURL(srv)))
	tr.Start()
	defer tr.Stop()

	select {
	case msg := <-tr.Messages():
		require.Equal(t, TypeWake, msg.Type)
		require.Equal(t, "t1", msg.TaskID)

	case <-time.After(5 * time.Second):
		t.Fatal("no frame delivered")
	}
}

// TestTransportReconnects asserts the transport re-dials after the service
// drops the connection.
func TestTransportReconnects(t *testing.T) {
	t.Parallel()

	conns := make(chan int, 8)
	count := 0
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			require.NoError(t, err)

			count++
			conns <- count

			if count == 1 {
				// Drop the first connection immediately.
				conn.Close()
				return
			}

			defer conn.Close()
			frame, _ := json.Marshal(Message{Type: TypeSync})
			require.NoError(t, conn.WriteMessage(
				websocket.TextMessage, frame,
			))
			_, _, _ = conn.ReadMessage()
		},
	))
	defer srv.Close()

	tr := NewTransport(testConfig(wsURL(srv)))
	tr.Start()
	defer tr.Stop()

	select {
	case msg := <-tr.Messages():
		require.Equal(t, TypeSync, msg.Type)

	case <-time.After(5 * time.Second):
		t.Fatal("transport never reconnected")
	}

	require.GreaterOrEqual(t, count, 2)
}

// TestServiceSubscribe asserts the subscribe frame reaches the service and
// the subscription lifecycle is idempotent.
func TestServiceSubscribe(t *testing.T) {
	t.Parallel()

	tokens := make(chan string, 8)
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			require.NoError(t, err)
			defer conn.Close()

			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}

				var msg Message
				if json.Unmarshal(data, &msg) == nil &&
					msg.Type == TypeSubscribe {

					tokens <- msg.Token
				}
			}
		},
	))
	defer srv.Close()

	tr := NewTransport(testConfig(wsURL(srv)))
	defer tr.Stop()

	svc := NewService(tr)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, sub.Token)

	// Subscribing again returns the same handle.
	again, err := svc.Subscribe(ctx)
	require.NoError(t, err)
	require.Equal(t, sub.Token, again.Token)

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	require.True(t, current.IsSome())
	got := current.UnsafeFromSome()
	require.Equal(t, sub.Token, got.Token)

	require.NoError(t, svc.Unsubscribe(ctx))

	current, err = svc.Current(ctx)
	require.NoError(t, err)
	require.True(t, current.IsNone())

	// The subscribe frame eventually lands on the service side.
	select {
	case tok := <-tokens:
		require.Equal(t, sub.Token, tok)

	case <-time.After(5 * time.Second):
		t.Fatal("subscribe frame never arrived")
	}
}
