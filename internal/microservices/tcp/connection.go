package tcp

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// SessionState is the position of a session in its receive/dispatch cycle
type SessionState int32

const (
	StateAwaitingMessage SessionState = iota
	StateDispatching
	StateBroadcasting
	StateReplying
	StateIdle
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitingMessage:
		return "awaiting_message"
	case StateDispatching:
		return "dispatching"
	case StateBroadcasting:
		return "broadcasting"
	case StateReplying:
		return "replying"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionOptions tunes the per-connection receive loop
type SessionOptions struct {
	PollInterval time.Duration // bounded wait for data before re-checking shutdown
	IdleTimeout  time.Duration // evict peers silent this long; 0 disables eviction
	SendTimeout  time.Duration // write deadline for replies
}

type ClientConnection struct {
	ID          string // unique identifier = key in map
	conn        net.Conn
	Manager     *ConnectionManager // for broadcast and self-removal
	ip          string
	port        int
	connectedAt time.Time

	sendMu    sync.Mutex   // serializes writers: owner replies and other sessions' broadcasts
	state     atomic.Int32 // SessionState
	broken    atomic.Bool  // set when a send left a partial record on the stream
	closeOnce sync.Once

	mu          sync.Mutex
	lastMessage string

	logLimiter *rate.Limiter // caps warnings for malformed records from this peer
}

// constructor for Connection
func NewClientConnection(conn net.Conn, manager *ConnectionManager) *ClientConnection {
	c := &ClientConnection{
		ID:          uuid.NewString(),
		conn:        conn,
		Manager:     manager,
		connectedAt: time.Now(),
		logLimiter:  rate.NewLimiter(rate.Every(time.Second), 5),
	}
	c.ip, c.port = splitAddr(conn.RemoteAddr())
	return c
}

func splitAddr(addr net.Addr) (string, int) {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String(), tcpAddr.Port
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func (c *ClientConnection) RemoteAddr() string {
	return net.JoinHostPort(c.ip, strconv.Itoa(c.port))
}

func (c *ClientConnection) State() SessionState {
	return SessionState(c.state.Load())
}

func (c *ClientConnection) setState(s SessionState) {
	c.state.Store(int32(s))
}

func (c *ClientConnection) LastMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMessage
}

func (c *ClientConnection) Info() ConnectionInfo {
	return ConnectionInfo{
		ID:          c.ID,
		IP:          c.ip,
		Port:        c.port,
		LastMessage: c.LastMessage(),
		ConnectedAt: c.connectedAt,
	}
}

// Listen runs the session until the peer leaves, the transport fails, the
// peer idles out, or quit is closed. On every exit path the connection is
// unregistered and its socket released.
func (c *ClientConnection) Listen(quit <-chan struct{}, opts SessionOptions) {
	defer c.setState(StateClosed)
	defer c.Manager.RemoveConnection(c)

	logger := c.Manager.logger
	logger.Info("client_started_listening",
		"client_id", c.ID,
		"remote_addr", c.RemoteAddr(),
	)

	reader := NewRecordReader(c.conn)
	lastActivity := time.Now()

	for {
		select {
		case <-quit:
			logger.Info("client_session_shutdown", "client_id", c.ID)
			return
		default:
		}
		if c.broken.Load() {
			logger.Warn("client_stream_desynchronized", "client_id", c.ID)
			return
		}

		c.setState(StateAwaitingMessage)
		msg, err := reader.Poll(opts.PollInterval)
		switch {
		case err == nil:
			lastActivity = time.Now()
			c.dispatch(msg, opts)

		case errors.Is(err, ErrNoData):
			if opts.IdleTimeout > 0 && time.Since(lastActivity) > opts.IdleTimeout {
				logger.Warn("client_idle_timeout",
					"client_id", c.ID,
					"idle_timeout", opts.IdleTimeout.String(),
				)
				return
			}

		case errors.Is(err, ErrMalformedMessage):
			// dropped without a reply; the connection stays open
			lastActivity = time.Now()
			if c.logLimiter.Allow() {
				logger.Warn("malformed_message_dropped",
					"client_id", c.ID,
					"error", err.Error(),
				)
			}

		case errors.Is(err, ErrPeerDisconnected):
			logger.Info("client_disconnected", "client_id", c.ID)
			return

		default:
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error("client_read_error",
				"client_id", c.ID,
				"error", err.Error(),
			)
			return
		}
	}
}

// dispatch applies one well-framed record to the relay
func (c *ClientConnection) dispatch(msg *Message, opts SessionOptions) {
	logger := c.Manager.logger
	if msg.Version != ProtocolVersion {
		logger.Debug("message_version_ignored",
			"client_id", c.ID,
			"version", msg.Version,
		)
		return
	}

	c.setState(StateDispatching)
	text := msg.Text()
	c.mu.Lock()
	c.lastMessage = text
	c.mu.Unlock()
	c.Manager.SetLastMessage(text)

	switch msg.Type {
	case TypeBroadcast:
		c.setState(StateBroadcasting)
		delivered := c.Manager.Broadcast(msg, c)
		logger.Debug("message_broadcast",
			"client_id", c.ID,
			"length", msg.Length,
			"delivered", delivered,
		)
	case TypeReverseEcho:
		c.setState(StateReplying)
		msg.Reverse()
		if err := c.Send(msg, opts.SendTimeout); err != nil {
			logger.Warn("reverse_echo_send_failed",
				"client_id", c.ID,
				"error", err.Error(),
			)
		}
	default:
		c.setState(StateIdle)
	}
}

// Send writes one whole record to this peer, bounded by timeout (0 = none).
// If the write fails midway the stream can no longer be framed, so the
// session is woken and told to close; its own teardown unregisters it.
func (c *ClientConnection) Send(msg *Message, timeout time.Duration) error {
	buf, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	if c.broken.Load() {
		return ErrTransport
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	n, err := writeFull(c.conn, buf)
	if err != nil && n > 0 {
		c.broken.Store(true)
		c.conn.SetReadDeadline(time.Now())
	}
	return err
}

// method to close the connection
func (c *ClientConnection) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}
