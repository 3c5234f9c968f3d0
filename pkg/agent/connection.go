package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mothershiphq/mothership/pkg/log"
	"github.com/mothershiphq/mothership/pkg/protocol"
)

const (
	reconnectBackoff    = 5 * time.Second
	maxConsecutiveErrors = 3
	outgoingQueueDepth  = 256
)

// Health reports the counters the agent tracks for its connection.
type Health struct {
	Connected         bool
	MessagesIn        uint64
	MessagesOut       uint64
	ConsecutiveErrors int
	Reconnects        uint64
}

// Connection owns one WebSocket to a rift, including its reconnect
// loop. Failures are retried with a fixed backoff; a successful dial
// replays JoinRift with the last known checkpoint so the server can
// answer with a catch-up SyncData.
type Connection struct {
	serverURL string
	riftID    string
	token     string
	onMessage func(protocol.Envelope)

	outgoing chan protocol.Envelope

	mu             sync.Mutex
	ws             *websocket.Conn
	lastCheckpoint string
	connected      bool

	messagesIn        atomic.Uint64
	messagesOut       atomic.Uint64
	consecutiveErrors atomic.Int32
	reconnects        atomic.Uint64
}

// NewConnection creates a Connection. onMessage is invoked on the
// connection's own read goroutine for every inbound frame; callers
// that mutate shared state must synchronize internally.
func NewConnection(serverURL, riftID, token string, onMessage func(protocol.Envelope)) *Connection {
	return &Connection{
		serverURL: serverURL,
		riftID:    riftID,
		token:     token,
		onMessage: onMessage,
		outgoing:  make(chan protocol.Envelope, outgoingQueueDepth),
	}
}

// SetLastCheckpoint records the checkpoint to resume from on the next
// (re)connect.
func (c *Connection) SetLastCheckpoint(checkpointID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCheckpoint = checkpointID
}

// Send enqueues an outbound frame. If the outgoing queue is full the
// frame is dropped with a warning rather than blocking the watcher.
func (c *Connection) Send(env protocol.Envelope) {
	select {
	case c.outgoing <- env:
	default:
		log.WithComponent("agent.conn").Warn().Str("type", string(env.Type)).Msg("outgoing queue full, dropping message")
	}
}

// Health returns a snapshot of the connection's counters.
func (c *Connection) Health() Health {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	return Health{
		Connected:         connected,
		MessagesIn:        c.messagesIn.Load(),
		MessagesOut:       c.messagesOut.Load(),
		ConsecutiveErrors: int(c.consecutiveErrors.Load()),
		Reconnects:        c.reconnects.Load(),
	}
}

// Run dials, serves, and redials until ctx is canceled.
func (c *Connection) Run(ctx context.Context) {
	logger := log.WithComponent("agent.conn")
	for {
		if ctx.Err() != nil {
			return
		}

		if err := c.connectAndServe(ctx); err != nil {
			logger.Warn().Err(err).Msg("connection lost, backing off")
		}

		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
			c.reconnects.Add(1)
		}
	}
}

func (c *Connection) connectAndServe(ctx context.Context) error {
	logger := log.WithComponent("agent.conn")

	u, err := dialURL(c.serverURL, c.riftID, c.token)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.riftID, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.connected = true
	last := c.lastCheckpoint
	c.mu.Unlock()
	c.consecutiveErrors.Store(0)
	logger.Info().Str("rift_id", c.riftID).Msg("connected")

	join, err := protocol.Encode(protocol.TypeJoinRift, protocol.JoinRift{RiftID: c.riftID, LastCheckpoint: last})
	if err != nil {
		ws.Close()
		return fmt.Errorf("encode JoinRift: %w", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, join); err != nil {
		ws.Close()
		return fmt.Errorf("send JoinRift: %w", err)
	}
	c.messagesOut.Add(1)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErr := make(chan error, 1)
	go c.readLoop(ws, readErr)

	writeErr := make(chan error, 1)
	go c.writeLoop(ctx, ws, writeErr)

	select {
	case err := <-readErr:
		ws.Close()
		<-writeErr
		return err
	case err := <-writeErr:
		ws.Close()
		<-readErr
		return err
	case <-ctx.Done():
		ws.Close()
		<-readErr
		<-writeErr
		return ctx.Err()
	}
}

func (c *Connection) readLoop(ws *websocket.Conn, done chan<- error) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			done <- err
			return
		}
		c.messagesIn.Add(1)

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			n := c.consecutiveErrors.Add(1)
			log.WithComponent("agent.conn").Warn().Err(err).Msg("malformed frame")
			if n >= maxConsecutiveErrors {
				done <- fmt.Errorf("too many consecutive errors: %w", err)
				return
			}
			continue
		}
		c.consecutiveErrors.Store(0)

		if c.onMessage != nil {
			c.onMessage(env)
		}
	}
}

func (c *Connection) writeLoop(ctx context.Context, ws *websocket.Conn, done chan<- error) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			done <- nil
			return
		case env := <-c.outgoing:
			raw, err := json.Marshal(env)
			if err != nil {
				log.WithComponent("agent.conn").Warn().Err(err).Msg("failed to encode outgoing message")
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				done <- err
				return
			}
			c.messagesOut.Add(1)
		case <-ticker.C:
			hb, _ := protocol.Encode(protocol.TypeHeartbeat, protocol.Heartbeat{})
			if err := ws.WriteMessage(websocket.TextMessage, hb); err != nil {
				done <- err
				return
			}
			c.messagesOut.Add(1)
		}
	}
}

func dialURL(serverURL, riftID, token string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/sync/" + riftID
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
