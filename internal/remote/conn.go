// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/livetv/internal/engine"
	tvlog "github.com/ManuGH/livetv/internal/log"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 256
	defaultCallTTL = 15 * time.Second
)

// ErrRemote wraps an error reported by the client for a command.
var ErrRemote = errors.New("remote: client error")

// Conn is one player tab. Results are resolved by the read pump; every
// other inbound frame is queued for the dispatcher, so a dispatcher waiting
// on a result never stalls the read pump.
type Conn struct {
	ws     *websocket.Conn
	logger zerolog.Logger
	send   chan []byte

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan Frame
	queue   []Frame
	signal  chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newConn(ws *websocket.Conn, logger zerolog.Logger) *Conn {
	c := &Conn{
		ws:      ws,
		logger:  logger,
		send:    make(chan []byte, sendBuffer),
		pending: make(map[uint64]chan Frame),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	c.wg.Add(2)
	go c.writePump()
	go c.readPump()
	return c
}

// Done is closed once the connection is gone.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close shuts the connection down and waits for both pumps.
func (c *Conn) Close() {
	c.shutdown()
	c.wg.Wait()
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Send queues f for the client.
func (c *Conn) Send(f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("remote: encode %s: %w", f.Type, err)
	}
	select {
	case <-c.done:
		return engine.ErrDetached
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return engine.ErrDetached
	}
}

// TrySend queues f unless the buffer is full. Used for views, where a newer
// frame supersedes a dropped one.
func (c *Conn) TrySend(f Frame) bool {
	b, err := json.Marshal(f)
	if err != nil {
		return false
	}
	select {
	case <-c.done:
		return false
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Command sends a fire-and-forget command.
func (c *Conn) Command(op, instance string, data any) error {
	return c.Send(Frame{Type: FrameCommand, Op: op, Instance: instance, Data: payload(data)})
}

// Call sends a command and waits for its result.
func (c *Conn) Call(ctx context.Context, op, instance string, data any) (Frame, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCallTTL)
		defer cancel()
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan Frame, 1)
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.Send(Frame{Type: FrameCommand, ID: id, Op: op, Instance: instance, Data: payload(data)}); err != nil {
		return Frame{}, err
	}

	select {
	case res := <-ch:
		if res.Error != "" {
			return res, fmt.Errorf("%w: %s: %s", ErrRemote, op, res.Error)
		}
		return res, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-c.done:
		return Frame{}, engine.ErrDetached
	}
}

// Next blocks until an inbound frame is available or the connection ends.
func (c *Conn) Next(ctx context.Context) (Frame, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			f := c.queue[0]
			c.queue[0] = Frame{}
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return f, nil
		}
		c.mu.Unlock()

		select {
		case <-c.signal:
		case <-c.done:
			return Frame{}, engine.ErrDetached
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
}

func (c *Conn) enqueue(f Frame) {
	c.mu.Lock()
	c.queue = append(c.queue, f)
	c.mu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *Conn) resolve(f Frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug().Uint64("id", f.ID).Str(tvlog.FieldEvent, "remote.orphan_result").Msg("result for unknown command")
		return
	}
	ch <- f
}

func (c *Conn) readPump() {
	defer c.wg.Done()
	defer c.shutdown()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Str(tvlog.FieldEvent, "remote.read_failed").Msg("websocket read ended")
			}
			return
		}
		if f.Type == FrameResult {
			c.resolve(f)
			continue
		}
		c.enqueue(f)
	}
}

func (c *Conn) writePump() {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			return
		}
	}
}

// flush writes whatever is still buffered, best effort.
func (c *Conn) flush() {
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
