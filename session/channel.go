package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"quizbench/protocol"

	"github.com/coder/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrAuthenticationRejected means the coordinator refused the transport
	// handshake, usually a bad or expired bearer token.
	ErrAuthenticationRejected = errors.New("authentication rejected")
	ErrChannelClosed          = errors.New("channel closed")
	ErrBufferFull             = errors.New("send buffer full")
	ErrAckTimeout             = errors.New("acknowledgment timed out")
)

// State of a participant channel. Transitions only move forward except for
// the Answering <-> AwaitingNext pair, which alternates once per question.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateJoined
	StateAnswering
	StateAwaitingNext
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateAnswering:
		return "answering"
	case StateAwaitingNext:
		return "awaiting_next"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Handler receives the payload of an inbound event. The payload bytes are
// only valid for the duration of the call.
type Handler func(payload jsoniter.RawMessage)

// AckFunc resolves a request exactly once: with the coordinator's
// (status, message) pair, or with a non-nil error when the channel dies or
// the optional ack timeout fires first.
type AckFunc func(ack protocol.Ack, err error)

type Options struct {
	// AckTimeout bounds the wait for an acknowledgment. Zero waits
	// forever.
	AckTimeout time.Duration
	// SendBuffer is the outbound frame buffer size, default 32.
	SendBuffer int
	// HTTPClient overrides the client used for the upgrade request.
	HTTPClient *http.Client
	// WriteTimeout bounds a single frame write, default 10s.
	WriteTimeout time.Duration
}

// Channel is one participant's persistent connection to the coordinator.
// A single reader goroutine dispatches inbound events in arrival order; a
// single writer goroutine drains the send buffer.
type Channel struct {
	conn         *websocket.Conn
	send         chan []byte
	writeTimeout time.Duration
	ackTimeout   time.Duration

	handlers map[string][]Handler
	hmu      sync.RWMutex

	acks    map[uint64]AckFunc
	amu     sync.Mutex
	nextAck atomic.Uint64

	state atomic.Int32

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects and authenticates with token as a bearer credential. On a
// 401/403 upgrade refusal the returned error wraps
// ErrAuthenticationRejected and the channel stays down.
func Dial(ctx context.Context, wsURL, token string, opts *Options) (*Channel, error) {
	if opts == nil {
		opts = &Options{}
	}
	sendBuf := opts.SendBuffer
	if sendBuf <= 0 {
		sendBuf = 32
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	c := &Channel{
		send:         make(chan []byte, sendBuf),
		writeTimeout: writeTimeout,
		ackTimeout:   opts.AckTimeout,
		handlers:     make(map[string][]Handler),
		acks:         make(map[uint64]AckFunc),
		closed:       make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	dialOpts := &websocket.DialOptions{HTTPHeader: header}
	if opts.HTTPClient != nil {
		dialOpts.HTTPClient = opts.HTTPClient
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, dialOpts)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrAuthenticationRejected
		}
		return nil, err
	}

	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.state.Store(int32(StateConnected))

	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

func (c *Channel) State() State {
	return State(c.state.Load())
}

func (c *Channel) setState(s State) {
	c.state.Store(int32(s))
}

// Closed is closed once the channel is down, whichever side ended it.
func (c *Channel) Closed() <-chan struct{} {
	return c.closed
}

// On registers a handler for an inbound event. Handlers for one event run
// in registration order, all on the reader goroutine.
func (c *Channel) On(event string, h Handler) {
	c.hmu.Lock()
	c.handlers[event] = append(c.handlers[event], h)
	c.hmu.Unlock()
}

// Emit sends an event. A non-nil ack registers for the coordinator's
// (status, message) response; fire-and-forget otherwise.
func (c *Channel) Emit(event string, payload interface{}, ack AckFunc) error {
	if c.State() == StateEnded {
		return ErrChannelClosed
	}

	msg := protocol.NewMessage(event, payload)
	if ack != nil {
		id := c.nextAck.Add(1)
		msg.AckID = id
		c.amu.Lock()
		c.acks[id] = ack
		c.amu.Unlock()

		if c.ackTimeout > 0 {
			go c.expireAck(id)
		}
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrChannelClosed
	default:
		if msg.AckID != 0 {
			c.takeAck(msg.AckID)
		}
		return ErrBufferFull
	}
}

// EmitWait sends an event and blocks until its acknowledgment resolves.
func (c *Channel) EmitWait(ctx context.Context, event string, payload interface{}) (protocol.Ack, error) {
	type result struct {
		ack protocol.Ack
		err error
	}
	done := make(chan result, 1)

	err := c.Emit(event, payload, func(ack protocol.Ack, err error) {
		done <- result{ack, err}
	})
	if err != nil {
		return protocol.Ack{}, err
	}

	select {
	case res := <-done:
		return res.ack, res.err
	case <-ctx.Done():
		return protocol.Ack{}, ctx.Err()
	}
}

// Join asks to enter the session behind joinCode. A success status moves
// the channel to Joined; any other status leaves it Connected and the ack
// carries the coordinator's explanation.
func (c *Channel) Join(ctx context.Context, joinCode string) (protocol.Ack, error) {
	ack, err := c.EmitWait(ctx, protocol.EventSessionConnect, protocol.JoinPayload{JoinCode: joinCode})
	if err != nil {
		return ack, err
	}
	if ack.OK() {
		c.setState(StateJoined)
	}
	return ack, nil
}

// Close tears the channel down and fails every pending acknowledgment.
// Safe to call more than once.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(StateEnded)
		c.cancel()
		close(c.closed)
		err = c.conn.Close(websocket.StatusNormalClosure, "")
		c.failPendingAcks()
	})
	return err
}

func (c *Channel) readLoop() {
	defer c.Close()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			continue
		}

		if msg.Event == protocol.EventAck {
			var ack protocol.Ack
			if err := json.Unmarshal(msg.Payload, &ack); err == nil {
				if fn := c.takeAck(msg.AckID); fn != nil {
					fn(ack, nil)
				}
			}
			protocol.ReleaseMessage(msg)
			continue
		}

		c.hmu.RLock()
		handlers := c.handlers[msg.Event]
		c.hmu.RUnlock()
		for _, h := range handlers {
			h(msg.Payload)
		}
		protocol.ReleaseMessage(msg)
	}
}

func (c *Channel) writeLoop() {
	defer c.conn.CloseNow()

	for {
		select {
		case data := <-c.send:
			writeCtx, writeCancel := context.WithTimeout(c.ctx, c.writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			writeCancel()
			if err != nil {
				c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// takeAck removes and returns the callback for id, or nil if it already
// resolved. Removal under the lock is what makes resolution exactly-once.
func (c *Channel) takeAck(id uint64) AckFunc {
	c.amu.Lock()
	defer c.amu.Unlock()
	fn, ok := c.acks[id]
	if !ok {
		return nil
	}
	delete(c.acks, id)
	return fn
}

func (c *Channel) expireAck(id uint64) {
	select {
	case <-time.After(c.ackTimeout):
		if fn := c.takeAck(id); fn != nil {
			fn(protocol.Ack{}, ErrAckTimeout)
		}
	case <-c.ctx.Done():
	}
}

func (c *Channel) failPendingAcks() {
	c.amu.Lock()
	pending := c.acks
	c.acks = make(map[uint64]AckFunc)
	c.amu.Unlock()
	for _, fn := range pending {
		fn(protocol.Ack{}, ErrChannelClosed)
	}
}
