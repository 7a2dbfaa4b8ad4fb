package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/courier-bot/courier/internal/logging"
)

// DefaultGatewayURL is the websocket gateway used when config leaves it blank.
const DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway opcodes.
const (
	opDispatch  = 0
	opHeartbeat = 1
	opIdentify  = 2
	opHello     = 10
	opHeartACK  = 11
)

// Inbound is a user message received from the gateway.
type Inbound struct {
	MessageID string
	ChannelID string
	AuthorID  string
	AuthorBot bool
	Content   string
}

// MessageHandler receives each inbound user message in arrival order.
type MessageHandler func(ctx context.Context, msg Inbound)

// Gateway maintains the websocket connection and dispatches message events.
type Gateway struct {
	url     string
	token   string
	handler MessageHandler
	seq     atomic.Int64
}

// NewGateway creates a gateway client. The handler is invoked from the read
// loop goroutine, one event at a time.
func NewGateway(url, token string, handler MessageHandler) *Gateway {
	if url == "" {
		url = DefaultGatewayURL
	}
	return &Gateway{url: url, token: token, handler: handler}
}

// gatewayFrame is the envelope for all gateway traffic.
type gatewayFrame struct {
	Op int             `json:"op"`
	T  string          `json:"t,omitempty"`
	S  int64           `json:"s,omitempty"`
	D  json.RawMessage `json:"d,omitempty"`
}

// Run connects and serves until the context is cancelled, reconnecting with
// backoff after connection loss.
func (g *Gateway) Run(ctx context.Context) error {
	log := logging.ForComponent(logging.CompPlatform)

	backoff := time.Second
	for {
		err := g.serveConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("gateway_disconnected", "error", err, "retry_in", backoff.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// serveConnection runs one connect/identify/read cycle.
func (g *Gateway) serveConnection(ctx context.Context) error {
	log := logging.ForComponent(logging.CompPlatform)

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, g.url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close()

	// First frame must be hello with the heartbeat interval.
	var hello gatewayFrame
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello frame, got op %d", hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.D, &helloData); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}
	interval := time.Duration(helloData.HeartbeatInterval) * time.Millisecond
	if interval <= 0 {
		interval = 41 * time.Second
	}

	if err := g.sendIdentify(conn); err != nil {
		return err
	}
	log.Info("gateway_connected", "heartbeat_interval", interval.String())

	connCtx, stop := context.WithCancel(ctx)
	defer stop()

	eg, egCtx := errgroup.WithContext(connCtx)

	eg.Go(func() error {
		return g.heartbeatLoop(egCtx, conn, interval)
	})
	eg.Go(func() error {
		defer stop()
		return g.readLoop(egCtx, conn)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		// Unblock the read loop.
		conn.Close()
		return nil
	})

	return eg.Wait()
}

func (g *Gateway) sendIdentify(conn *websocket.Conn) error {
	identify := map[string]any{
		"op": opIdentify,
		"d": map[string]any{
			"token":   g.token,
			"intents": 1<<9 | 1<<15, // guild messages + message content
			"properties": map[string]string{
				"os":      "linux",
				"browser": "courier",
				"device":  "courier",
			},
		},
	}
	if err := conn.WriteJSON(identify); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}
	return nil
}

func (g *Gateway) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			frame := map[string]any{"op": opHeartbeat, "d": g.seq.Load()}
			if err := conn.WriteJSON(frame); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}
		}
	}
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn) error {
	log := logging.ForComponent(logging.CompPlatform)

	for {
		var frame gatewayFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if frame.S != 0 {
			g.seq.Store(frame.S)
		}

		switch frame.Op {
		case opDispatch:
			if frame.T != "MESSAGE_CREATE" {
				continue
			}
			msg, err := decodeMessageCreate(frame.D)
			if err != nil {
				log.Warn("gateway_event_decode_failed", "event", frame.T, "error", err)
				continue
			}
			if msg.AuthorBot {
				continue
			}
			if g.handler != nil {
				g.handler(ctx, msg)
			}
		case opHeartACK:
			// Expected; nothing to do.
		}
	}
}

func decodeMessageCreate(d json.RawMessage) (Inbound, error) {
	var ev struct {
		ID        string `json:"id"`
		ChannelID string `json:"channel_id"`
		Content   string `json:"content"`
		Author    struct {
			ID  string `json:"id"`
			Bot bool   `json:"bot"`
		} `json:"author"`
	}
	if err := json.Unmarshal(d, &ev); err != nil {
		return Inbound{}, err
	}
	return Inbound{
		MessageID: ev.ID,
		ChannelID: ev.ChannelID,
		AuthorID:  ev.Author.ID,
		AuthorBot: ev.Author.Bot,
		Content:   ev.Content,
	}, nil
}
