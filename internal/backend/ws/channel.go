// Package ws implements backend.Channel over a single
// github.com/gorilla/websocket connection, framing every outbound and
// inbound message as a tagged JSON text frame. It is grounded on the
// teacher's WebSocket protocol package: a read pump and a write pump each
// running on their own goroutine (protocol.go's handleClient loop plus its
// ping ticker), and Connection's write-mutex-guarded send path
// (connection.go's Send/SendMessage).
package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/angular/tactical/internal/backend"
	"github.com/angular/tactical/internal/log"
)

const (
	writeTimeout  = 10 * time.Second
	pingInterval  = 30 * time.Second
	pongTimeout   = 60 * time.Second
	outboundDepth = 64
	inboundDepth  = 64
)

// frameType tags the envelope every message on the wire is wrapped in.
type frameType string

const (
	frameRequest frameType = "request"
	frameMutate  frameType = "mutate"
	frameData    frameType = "data"
	frameFailed  frameType = "failed"
)

type envelope struct {
	Type frameType `json:"type"`

	// request
	Key any `json:"key,omitempty"`

	// mutate
	Base    string `json:"base,omitempty"`
	Value   any    `json:"value,omitempty"`
	Context any    `json:"context,omitempty"`

	// data
	Version         string `json:"version,omitempty"`
	Data            any    `json:"data,omitempty"`
	MutationContext any    `json:"mutationContext,omitempty"`

	// failed
	BaseVersion   string `json:"baseVersion,omitempty"`
	Reason        string `json:"reason,omitempty"`
	DebuggingInfo any    `json:"debuggingInfo,omitempty"`
}

// Channel is a backend.Channel backed by one websocket connection.
type Channel struct {
	conn   *websocket.Conn
	logger log.Log

	outbound chan envelope
	data     chan backend.DataFrame
	failed   chan backend.FailureFrame

	done chan struct{}
}

var _ backend.Channel = (*Channel)(nil)

// Dial opens a websocket connection to url and starts the channel's read
// and write pumps.
func Dial(ctx context.Context, url string, logger log.Log) (*Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("backend/ws: dial: %w", err)
	}
	if logger == nil {
		logger = log.New(log.LevelSilent)
	}
	c := &Channel{
		conn:     conn,
		logger:   logger.With(log.String("component", "backend/ws")),
		outbound: make(chan envelope, outboundDepth),
		data:     make(chan backend.DataFrame, inboundDepth),
		failed:   make(chan backend.FailureFrame, inboundDepth),
		done:     make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

func (c *Channel) Request(key any) error {
	return c.send(envelope{Type: frameRequest, Key: key})
}

func (c *Channel) Mutate(key any, base string, value any, context any) error {
	return c.send(envelope{Type: frameMutate, Key: key, Base: base, Value: value, Context: context})
}

func (c *Channel) Data() <-chan backend.DataFrame {
	return c.data
}

func (c *Channel) Failed() <-chan backend.FailureFrame {
	return c.failed
}

func (c *Channel) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	close(c.done)
	return c.conn.Close()
}

func (c *Channel) send(env envelope) error {
	select {
	case c.outbound <- env:
		return nil
	case <-c.done:
		return fmt.Errorf("backend/ws: channel closed")
	}
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case env := <-c.outbound:
			if err := c.writeJSON(env); err != nil {
				c.logger.Error("write failed", log.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error("ping failed", log.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Channel) writeJSON(env envelope) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(env)
}

func (c *Channel) readPump() {
	defer close(c.data)
	defer close(c.failed)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Error("read failed", log.Error(err))
			}
			return
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env envelope) {
	switch env.Type {
	case frameData:
		select {
		case c.data <- backend.DataFrame{
			Key: env.Key, Version: env.Version, Data: env.Data, MutationContext: env.MutationContext,
		}:
		case <-c.done:
		}
	case frameFailed:
		select {
		case c.failed <- backend.FailureFrame{
			Key: env.Key, BaseVersion: env.BaseVersion, Context: env.Context,
			Reason: env.Reason, DebuggingInfo: env.DebuggingInfo,
		}:
		case <-c.done:
		}
	default:
		c.logger.Warn("unexpected inbound frame type", log.String("type", string(env.Type)))
	}
}
