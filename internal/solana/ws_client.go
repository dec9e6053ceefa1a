package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"dex-pair-sentinel/internal/observability"
)

// ErrClientClosed is returned by calls on a closed WSClient.
var ErrClientClosed = errors.New("websocket client closed")

// WSOptions configures WSClient.
type WSOptions struct {
	ReconnectDelay    time.Duration // first redial delay, doubled up to MaxReconnectDelay
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	SubscribeTimeout  time.Duration
	BufferSize        int // per-subscription channel buffer
	Commitment        string
	Logger            *log.Logger
}

// DefaultWSOptions returns the default client options.
func DefaultWSOptions() WSOptions {
	return WSOptions{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		BufferSize:        4096,
		Commitment:        DefaultCommitment,
		Logger:            log.Default(),
	}
}

// WSClient implements LogSubscriber over gorilla/websocket. It redials with
// exponential backoff and resubscribes every active filter after a reconnect.
type WSClient struct {
	endpoint string
	opts     WSOptions

	connMu sync.Mutex // guards conn and serializes writes
	conn   *websocket.Conn

	mu      sync.Mutex
	subs    map[int64]*subscription
	pending map[uint64]chan subReply

	requestID atomic.Uint64
	closed    atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
}

type subscription struct {
	filter LogsFilter
	ch     chan LogNotification
}

type subReply struct {
	id  int64
	err error
}

// DialWS connects to endpoint and starts the read and ping loops.
func DialWS(ctx context.Context, endpoint string, opts WSOptions) (*WSClient, error) {
	def := DefaultWSOptions()
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = def.ReconnectDelay
	}
	if opts.MaxReconnectDelay <= 0 {
		opts.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = def.PingInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = def.ReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.SubscribeTimeout <= 0 {
		opts.SubscribeTimeout = def.SubscribeTimeout
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	if opts.Commitment == "" {
		opts.Commitment = def.Commitment
	}
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}

	c := &WSClient{
		endpoint: endpoint,
		opts:     opts,
		subs:     make(map[int64]*subscription),
		pending:  make(map[uint64]chan subReply),
		done:     make(chan struct{}),
	}
	if err := c.dial(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func (c *WSClient) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// SubscribeLogs subscribes to logs matching filter.
func (c *WSClient) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	id, err := c.subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}

	sub := &subscription{filter: filter, ch: make(chan LogNotification, c.opts.BufferSize)}
	c.mu.Lock()
	c.subs[id] = sub
	c.mu.Unlock()
	return sub.ch, nil
}

// subscribe sends logsSubscribe and waits for the subscription id.
func (c *WSClient) subscribe(ctx context.Context, filter LogsFilter) (int64, error) {
	if c.closed.Load() {
		return 0, ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	reply := make(chan subReply, 1)
	c.mu.Lock()
	c.pending[reqID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}()

	err := c.write(rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params:  filter.params(c.opts.Commitment),
	})
	if err != nil {
		return 0, fmt.Errorf("logsSubscribe: %w", err)
	}

	timer := time.NewTimer(c.opts.SubscribeTimeout)
	defer timer.Stop()
	select {
	case r := <-reply:
		return r.id, r.err
	case <-timer.C:
		return 0, fmt.Errorf("logsSubscribe: no confirmation after %s", c.opts.SubscribeTimeout)
	case <-c.done:
		return 0, ErrClientClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *WSClient) write(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// Close stops the loops and closes every subscription channel.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()
	return nil
}

func (c *WSClient) readLoop() {
	defer c.wg.Done()
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn != nil {
			conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
			_, msg, err := conn.ReadMessage()
			if err == nil {
				c.dispatch(msg)
				continue
			}
			if c.closed.Load() {
				return
			}
			c.opts.Logger.Printf("ws read failed, reconnecting: %v", err)
		}
		if !c.redial() {
			return
		}
	}
}

// redial reconnects with backoff and resubscribes in the background.
// Returns false once the client is closed.
func (c *WSClient) redial() bool {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	delay := c.opts.ReconnectDelay
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			c.opts.Logger.Printf("ws reconnected to %s", c.endpoint)
			// Confirmations arrive through readLoop, so resubscribe elsewhere.
			c.wg.Add(1)
			go c.resubscribeAll()
			return true
		}
		c.opts.Logger.Printf("ws redial failed (next in %s): %v", delay, err)
		delay = min(delay*2, c.opts.MaxReconnectDelay)
	}
}

func (c *WSClient) resubscribeAll() {
	defer c.wg.Done()

	c.mu.Lock()
	old := make(map[int64]*subscription, len(c.subs))
	for id, sub := range c.subs {
		old[id] = sub
	}
	c.mu.Unlock()

	for oldID, sub := range old {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.SubscribeTimeout)
		newID, err := c.subscribe(ctx, sub.filter)
		cancel()
		if err != nil {
			c.opts.Logger.Printf("ws resubscribe %v failed: %v", sub.filter.Mentions, err)
			continue
		}
		c.mu.Lock()
		delete(c.subs, oldID)
		c.subs[newID] = sub
		c.mu.Unlock()
	}
}

type wsEnvelope struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Method string          `json:"method"`
	Params *struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot int64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string   `json:"signature"`
				Logs      []string `json:"logs"`
				Err       any      `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

func (c *WSClient) dispatch(msg []byte) {
	start := time.Now()
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.opts.Logger.Printf("ws: undecodable message: %v", err)
		return
	}

	if env.ID != nil {
		c.mu.Lock()
		reply, ok := c.pending[*env.ID]
		c.mu.Unlock()
		if !ok {
			return
		}
		var r subReply
		if env.Error != nil {
			r.err = env.Error
		} else if err := json.Unmarshal(env.Result, &r.id); err != nil {
			r.err = fmt.Errorf("decode subscription id: %w", err)
		}
		select {
		case reply <- r:
		default:
		}
		return
	}

	if env.Method != "logsNotification" || env.Params == nil {
		return
	}
	c.mu.Lock()
	sub, ok := c.subs[env.Params.Subscription]
	c.mu.Unlock()
	if !ok {
		return
	}

	v := env.Params.Result.Value
	n := LogNotification{
		Signature: v.Signature,
		Slot:      env.Params.Result.Context.Slot,
		Logs:      v.Logs,
		Failed:    v.Err != nil,
	}
	// Blocking send; the buffer absorbs bursts.
	select {
	case sub.ch <- n:
	case <-c.done:
		return
	}
	observability.RecordWSMessage(time.Since(start).Seconds())
}

func (c *WSClient) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				deadline := time.Now().Add(c.opts.WriteTimeout)
				if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					c.opts.Logger.Printf("ws ping: %v", err)
				}
			}
			c.connMu.Unlock()
		}
	}
}

var _ LogSubscriber = (*WSClient)(nil)
