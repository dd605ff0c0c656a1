package hub

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"quizbench/protocol"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var (
	ErrClosed     = errors.New("connection closed")
	ErrBufferFull = errors.New("send buffer full")
)

// Client is one authenticated connection on the coordinator side. Email
// comes from the bearer token at upgrade time and is not unique: the same
// account may hold several connections, so per-connection state (rate
// limiting) keys on ID instead. The session binding is set when the join
// request is accepted.
type Client struct {
	ID          string
	Email       string
	Conn        *websocket.Conn
	Send        chan []byte
	ConnectedAt time.Time

	joinCode string
	isOwner  bool
	mu       sync.RWMutex

	closed atomic.Bool
}

func NewClient(conn *websocket.Conn, email string, sendBufSize int) *Client {
	if sendBufSize <= 0 {
		sendBufSize = 32
	}
	return &Client{
		ID:          uuid.NewString(),
		Email:       email,
		Conn:        conn,
		Send:        make(chan []byte, sendBufSize),
		ConnectedAt: time.Now(),
	}
}

func (c *Client) SetSession(joinCode string, owner bool) {
	c.mu.Lock()
	c.joinCode = joinCode
	c.isOwner = owner
	c.mu.Unlock()
}

func (c *Client) JoinCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joinCode
}

func (c *Client) IsOwner() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isOwner
}

func (c *Client) SendMessage(msg *protocol.Message) error {
	if c.closed.Load() {
		return ErrClosed
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendAck answers the request behind id with a (status, message) pair.
func (c *Client) SendAck(id uint64, ack protocol.Ack) error {
	if id == 0 {
		return nil
	}
	return c.SendMessage(protocol.NewAck(id, ack))
}

func (c *Client) SendRaw(data []byte) (err error) {
	if c.closed.Load() {
		return ErrClosed
	}

	// protect against send on closed channel race
	defer func() {
		if r := recover(); r != nil {
			err = ErrClosed
		}
	}()

	select {
	case c.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close marks the client dead and closes its send channel. The write pump
// drains whatever is still queued, so a session_end broadcast right before
// the close still reaches the wire, then tears the connection down.
func (c *Client) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.Send)
	}
}

func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
