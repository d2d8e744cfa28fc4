package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voicewire/voicewire/pkg/protocol"
)

// Frame types of the event-bus websocket protocol.
const (
	frameConnectionInit = "connection_init"
	frameConnectionAck  = "connection_ack"
	frameSubscribe      = "subscribe"
	frameSubscribeOK    = "subscribe_success"
	framePublish        = "publish"
	frameData           = "data"
	frameError          = "error"
)

type wsFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Events  []string        `json:"events,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
	Message string          `json:"message,omitempty"`
}

// WebsocketClient dials the event-bus websocket endpoint and multiplexes one
// channel per connection.
type WebsocketClient struct {
	endpoint         string
	header           http.Header
	dialer           *websocket.Dialer
	logger           *slog.Logger
	writeTimeout     time.Duration
	handshakeTimeout time.Duration
}

type WebsocketOption func(*WebsocketClient)

func WithHeader(header http.Header) WebsocketOption {
	return func(c *WebsocketClient) { c.header = header }
}

func WithLogger(logger *slog.Logger) WebsocketOption {
	return func(c *WebsocketClient) { c.logger = logger }
}

func NewWebsocketClient(endpoint string, opts ...WebsocketOption) *WebsocketClient {
	c := &WebsocketClient{
		endpoint:         endpoint,
		dialer:           websocket.DefaultDialer,
		logger:           slog.Default(),
		writeTimeout:     5 * time.Second,
		handshakeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *WebsocketClient) Connect(ctx context.Context, path string) (Channel, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, c.header)
	if err != nil {
		return nil, fmt.Errorf("dial event bus: %w", err)
	}

	ch := &wsChannel{
		conn:         conn,
		path:         path,
		subID:        uuid.NewString(),
		logger:       c.logger,
		writeTimeout: c.writeTimeout,
		connAck:      make(chan error, 1),
		subAck:       make(chan error, 1),
	}
	go ch.readPump()

	if err := ch.writeFrame(wsFrame{Type: frameConnectionInit}); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("send connection_init: %w", err)
	}
	if err := ch.await(ctx, ch.connAck, c.handshakeTimeout); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("event bus handshake: %w", err)
	}
	return ch, nil
}

type wsChannel struct {
	conn         *websocket.Conn
	path         string
	subID        string
	logger       *slog.Logger
	writeTimeout time.Duration

	writeMu sync.Mutex
	closed  atomic.Bool

	handlerMu sync.RWMutex
	onEvent   func(protocol.Event)
	onError   func(error)

	connAck chan error
	subAck  chan error
}

func (ch *wsChannel) Subscribe(onEvent func(protocol.Event), onError func(error)) error {
	ch.handlerMu.Lock()
	ch.onEvent = onEvent
	ch.onError = onError
	ch.handlerMu.Unlock()

	if err := ch.writeFrame(wsFrame{Type: frameSubscribe, ID: ch.subID, Channel: ch.path}); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	return ch.await(context.Background(), ch.subAck, 10*time.Second)
}

func (ch *wsChannel) Publish(ctx context.Context, ev protocol.Event) error {
	if ch.closed.Load() {
		return fmt.Errorf("channel %s is closed", ch.path)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return ch.writeFrame(wsFrame{
		Type:    framePublish,
		ID:      uuid.NewString(),
		Channel: ch.path,
		Events:  []string{string(payload)},
	})
}

func (ch *wsChannel) Close() error {
	if !ch.closed.CompareAndSwap(false, true) {
		return nil
	}
	deadline := time.Now().Add(ch.writeTimeout)
	_ = ch.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return ch.conn.Close()
}

func (ch *wsChannel) writeFrame(frame wsFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	if err := ch.conn.SetWriteDeadline(time.Now().Add(ch.writeTimeout)); err != nil {
		return err
	}
	return ch.conn.WriteMessage(websocket.TextMessage, data)
}

func (ch *wsChannel) await(ctx context.Context, ack chan error, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-ack:
		return err
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ch *wsChannel) readPump() {
	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			if !ch.closed.Load() {
				ch.reportError(fmt.Errorf("event bus read: %w", err))
			}
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			ch.reportError(fmt.Errorf("invalid bus frame: %w", err))
			continue
		}
		switch frame.Type {
		case frameConnectionAck:
			ch.ack(ch.connAck, nil)
		case frameSubscribeOK:
			if frame.ID == ch.subID {
				ch.ack(ch.subAck, nil)
			}
		case frameError:
			err := fmt.Errorf("event bus error: %s", frame.Message)
			ch.ack(ch.connAck, err)
			ch.ack(ch.subAck, err)
			ch.reportError(err)
		case frameData:
			ch.dispatch(frame.Event)
		default:
			// publish acks and keepalives are uninteresting
		}
	}
}

func (ch *wsChannel) dispatch(raw json.RawMessage) {
	// Bus implementations deliver the event either inline or as a quoted
	// JSON string.
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			ch.reportError(fmt.Errorf("invalid quoted bus event: %w", err))
			return
		}
		raw = json.RawMessage(inner)
	}
	ev, err := protocol.Decode(raw)
	if err != nil {
		ch.reportError(err)
		return
	}
	ch.handlerMu.RLock()
	onEvent := ch.onEvent
	ch.handlerMu.RUnlock()
	if onEvent != nil {
		onEvent(ev)
	}
}

func (ch *wsChannel) ack(ack chan error, err error) {
	select {
	case ack <- err:
	default:
	}
}

func (ch *wsChannel) reportError(err error) {
	ch.handlerMu.RLock()
	onError := ch.onError
	ch.handlerMu.RUnlock()
	if onError != nil {
		onError(err)
		return
	}
	ch.logger.Warn("event bus error", "channel", ch.path, "error", err)
}

var _ Client = (*WebsocketClient)(nil)
