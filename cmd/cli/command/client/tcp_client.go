package client

// tcp_client.go = relay client: one outbound connection, a background
// receive loop and foreground sends.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"relayhub/internal/microservices/tcp"
	"sync"
	"time"
)

// MessageHandler is called from the receive goroutine for every inbound record
type MessageHandler func(msg *tcp.Message)

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	MessagesSent     int
	MessagesReceived int
	ConnectedAt      time.Time
}

// TCPClient talks the fixed-record relay protocol
type TCPClient struct {
	serverAddr   string
	conn         net.Conn
	pollInterval time.Duration
	handler      MessageHandler
	errOut       io.Writer

	mu      sync.Mutex // guards version and stats; never held across socket I/O
	version uint8
	stats   ConnectionStats

	writeMu sync.Mutex // serializes whole records on conn

	stopChan  chan struct{} // closed by Close to stop the receive loop
	doneChan  chan struct{} // closed when the receive loop has exited
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewTCPClient creates a client that prints inbound records to out
func NewTCPClient(serverAddr string, out io.Writer) *TCPClient {
	c := &TCPClient{
		serverAddr:   serverAddr,
		pollInterval: 100 * time.Millisecond,
		errOut:       out,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	c.handler = func(msg *tcp.Message) {
		fmt.Fprintf(out, "Received Msg Type: %d; Msg: %s\n", msg.Type, msg.Text())
	}
	return c
}

// OnMessage replaces the default printing handler
func (c *TCPClient) OnMessage(handler MessageHandler) {
	c.handler = handler
}

// Connect establishes connection to the relay
func (c *TCPClient) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", c.serverAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to server %s: %w", c.serverAddr, err)
	}
	c.conn = conn
	c.stats.ConnectedAt = time.Now()
	return nil
}

// StartReceiving launches the background receive loop
func (c *TCPClient) StartReceiving() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(c.doneChan)
		c.receiveLoop()
	}()
}

// Done is closed when the receive loop ends, either via Close or because
// the server went away
func (c *TCPClient) Done() <-chan struct{} {
	return c.doneChan
}

func (c *TCPClient) receiveLoop() {
	reader := tcp.NewRecordReader(c.conn)
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		msg, err := reader.Poll(c.pollInterval)
		switch {
		case err == nil:
			c.mu.Lock()
			c.stats.MessagesReceived++
			c.mu.Unlock()
			c.handler(msg)
		case errors.Is(err, tcp.ErrNoData):
			// nothing yet, loop re-checks stopChan
		case errors.Is(err, tcp.ErrMalformedMessage):
			fmt.Fprintf(c.errOut, "Dropped malformed message: %v\n", err)
		default:
			fmt.Fprintln(c.errOut, "Socket disconnected or error occurred")
			return
		}
	}
}

// SetVersion sets the version tag used by subsequent sends
func (c *TCPClient) SetVersion(version uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = version
}

func (c *TCPClient) Version() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Send builds a record with the current version and writes all of it.
// Text longer than the payload capacity is rejected, not truncated.
func (c *TCPClient) Send(msgType uint8, text string) error {
	msg, err := tcp.NewMessage(c.Version(), msgType, []byte(text))
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	err = tcp.WriteMessage(c.conn, msg)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	c.mu.Lock()
	c.stats.MessagesSent++
	c.mu.Unlock()
	return nil
}

// GetStats returns connection statistics
func (c *TCPClient) GetStats() ConnectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close stops the receive loop, waits for it, then closes the socket.
// The order keeps the loop from reading a socket closed under it.
func (c *TCPClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
