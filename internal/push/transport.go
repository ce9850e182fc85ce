// Package push implements the websocket transport to the push-messaging
// service. The background context consumes transport messages as wake-ups;
// the subscription strategies use it to establish delivery capability.
package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod is the ping cadence. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames.
	maxMessageSize = 4096

	// sendBufferSize is the outbound queue depth.
	sendBufferSize = 64
)

// Message frame types exchanged with the push service.
const (
	// TypeSubscribe registers a subscription token with the service.
	TypeSubscribe = "subscribe"

	// TypeUnsubscribe releases the subscription.
	TypeUnsubscribe = "unsubscribe"

	// TypeWake asks the receiver to run a pending-task check.
	TypeWake = "wake"

	// TypeSync asks the receiver to refresh its task snapshot.
	TypeSync = "sync"
)

// Message is one frame on the push transport.
type Message struct {
	// Type is one of the Type* constants.
	Type string `json:"type"`

	// Token carries the subscription token on subscribe frames.
	Token string `json:"token,omitempty"`

	// TaskID optionally narrows a wake to one task.
	TaskID string `json:"taskId,omitempty"`

	// SentAt is the sender's clock in epoch milliseconds.
	SentAt int64 `json:"sentAt,omitempty"`
}

// ErrTransportClosed is returned by Send after Stop.
var ErrTransportClosed = errors.New("push transport closed")

// Config holds transport configuration.
type Config struct {
	// URL is the websocket endpoint of the push service.
	URL string

	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration

	// MinBackoff and MaxBackoff bound the jittered reconnect delay.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// DefaultConfig returns the transport defaults for the given endpoint.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		MinBackoff:       time.Second,
		MaxBackoff:       time.Minute,
	}
}

// Transport maintains a websocket connection to the push service,
// reconnecting with jittered exponential backoff. Inbound frames are
// delivered on Messages; outbound frames are queued through Send.
type Transport struct {
	cfg Config

	messages chan Message
	send     chan Message

	quit chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewTransport creates a Transport for the configured endpoint.
func NewTransport(cfg Config) *Transport {
	return &Transport{
		cfg:      cfg,
		messages: make(chan Message, sendBufferSize),
		send:     make(chan Message, sendBufferSize),
		quit:     make(chan struct{}),
	}
}

// Start launches the connection loop. Safe to call once; later calls are
// no-ops.
func (t *Transport) Start() {
	t.startOnce.Do(func() {
		t.wg.Add(1)
		go t.run()
	})
}

// Stop tears the transport down and waits for the pumps to exit.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() {
		close(t.quit)
	})

	t.wg.Wait()
}

// Messages returns the inbound frame channel. Closed when the transport
// stops.
func (t *Transport) Messages() <-chan Message {
	return t.messages
}

// Send queues an outbound frame. Frames queued while disconnected are sent
// after the next reconnect.
func (t *Transport) Send(msg Message) error {
	if msg.SentAt == 0 {
		msg.SentAt = time.Now().UnixMilli()
	}

	select {
	case t.send <- msg:
		return nil

	case <-t.quit:
		return ErrTransportClosed

	default:
		return fmt.Errorf("push send queue full, dropping %s frame",
			msg.Type)
	}
}

// run is the connect-and-pump loop with backoff between attempts.
func (t *Transport) run() {
	defer t.wg.Done()
	defer close(t.messages)

	backoff := t.cfg.MinBackoff

	for {
		select {
		case <-t.quit:
			return
		default:
		}

		dialer := websocket.Dialer{
			HandshakeTimeout: t.cfg.HandshakeTimeout,
		}
		conn, _, err := dialer.Dial(t.cfg.URL, nil)
		if err != nil {
			log.Debugf("Push dial %s failed: %v, retrying in %v",
				t.cfg.URL, err, backoff)

			select {
			case <-time.After(jitter(backoff)):
			case <-t.quit:
				return
			}

			backoff = min(backoff*2, t.cfg.MaxBackoff)

			continue
		}

		log.Infof("Push transport connected to %s", t.cfg.URL)
		backoff = t.cfg.MinBackoff

		t.pump(conn)

		select {
		case <-t.quit:
			return
		default:
			log.Debugf("Push connection lost, reconnecting")
		}
	}
}

// pump runs the read and write pumps for one connection, returning when
// either side fails or the transport stops.
func (t *Transport) pump(conn *websocket.Conn) {
	defer conn.Close()

	readDone := make(chan struct{})

	go func() {
		defer close(readDone)

		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(
				time.Now().Add(pongWait),
			)
		})

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(
					err, websocket.CloseGoingAway,
					websocket.CloseNormalClosure,
				) {

					log.Debugf("Push read error: %v", err)
				}

				return
			}

			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Warnf("Dropping malformed push "+
					"frame: %v", err)

				continue
			}

			select {
			case t.messages <- msg:
			case <-t.quit:
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-t.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

			data, err := json.Marshal(msg)
			if err != nil {
				log.Warnf("Push marshal error: %v", err)
				continue
			}

			err = conn.WriteMessage(websocket.TextMessage, data)
			if err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

			err := conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}

		case <-readDone:
			return

		case <-t.quit:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(
					websocket.CloseNormalClosure, "",
				),
			)

			return
		}
	}
}

// jitter spreads a delay over [d/2, d) so reconnecting clients do not
// stampede the service.
func jitter(d time.Duration) time.Duration {
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
