package client

import (
	"context"
	"io"
	"log/slog"
	"relayhub/internal/microservices/tcp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedBuffer lets the receive goroutine and the test share output
type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startRelay(t *testing.T) *tcp.TCPServer {
	server := tcp.NewServer("127.0.0.1:0", tcp.ServerOptions{
		AcceptInterval: 20 * time.Millisecond,
		PollInterval:   20 * time.Millisecond,
		SendTimeout:    200 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)
	return server
}

// connect returns a receiving client whose inbound records land on a channel
func connect(t *testing.T, addr string) (*TCPClient, <-chan *tcp.Message) {
	c := NewTCPClient(addr, io.Discard)
	inbox := make(chan *tcp.Message, 8)
	c.OnMessage(func(msg *tcp.Message) { inbox <- msg })
	require.NoError(t, c.Connect(context.Background()))
	c.StartReceiving()
	t.Cleanup(func() { c.Close() })
	return c, inbox
}

func expectMessage(t *testing.T, inbox <-chan *tcp.Message) *tcp.Message {
	t.Helper()
	select {
	case msg := <-inbox:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func expectSilence(t *testing.T, inbox <-chan *tcp.Message) {
	t.Helper()
	select {
	case msg := <-inbox:
		t.Fatalf("unexpected message type %d %q", msg.Type, msg.Text())
	case <-time.After(200 * time.Millisecond):
	}
}

func TestClient_BroadcastAndReverseEcho(t *testing.T) {
	server := startRelay(t)
	addr := server.ListenAddr().String()

	a, inboxA := connect(t, addr)
	_, inboxB := connect(t, addr)
	require.Eventually(t, func() bool { return server.Manager.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	a.SetVersion(102)
	require.NoError(t, a.Send(77, "hello"))

	got := expectMessage(t, inboxB)
	assert.Equal(t, uint8(77), got.Type)
	assert.Equal(t, "hello", got.Text())
	expectSilence(t, inboxA)

	require.NoError(t, a.Send(201, "abcd"))
	got = expectMessage(t, inboxA)
	assert.Equal(t, "dcba", got.Text())
	expectSilence(t, inboxB)

	stats := a.GetStats()
	assert.Equal(t, 2, stats.MessagesSent)
	assert.Equal(t, 1, stats.MessagesReceived)
}

func TestClient_RejectsOversizedText(t *testing.T) {
	server := startRelay(t)
	a, _ := connect(t, server.ListenAddr().String())

	err := a.Send(77, strings.Repeat("x", tcp.PayloadCapacity+1))
	assert.ErrorIs(t, err, tcp.ErrPayloadTooLarge)
	assert.Equal(t, 0, a.GetStats().MessagesSent)
}

func TestClient_DoneWhenServerStops(t *testing.T) {
	server := startRelay(t)
	a, _ := connect(t, server.ListenAddr().String())
	require.Eventually(t, func() bool { return server.Manager.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	server.Stop()

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not notice the server going away")
	}
	assert.NoError(t, a.Close())
}

func TestClient_CloseStopsReceiveLoop(t *testing.T) {
	server := startRelay(t)
	a, _ := connect(t, server.ListenAddr().String())

	require.NoError(t, a.Close())
	select {
	case <-a.Done():
	default:
		t.Fatal("Close must join the receive loop before returning")
	}
	assert.NoError(t, a.Close(), "second Close is a no-op")
}

func TestClient_KeepsReceivingWhileSendBlocked(t *testing.T) {
	server := startRelay(t)
	addr := server.ListenAddr().String()

	a, inboxA := connect(t, addr)
	b, _ := connect(t, addr)
	require.Eventually(t, func() bool { return server.Manager.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	// hold a's socket as a stalled write would
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	b.SetVersion(102)
	require.NoError(t, b.Send(77, "still here"))

	got := expectMessage(t, inboxA)
	assert.Equal(t, "still here", got.Text())

	statsRead := make(chan ConnectionStats, 1)
	go func() { statsRead <- a.GetStats() }()
	select {
	case stats := <-statsRead:
		assert.Equal(t, 1, stats.MessagesReceived)
	case <-time.After(time.Second):
		t.Fatal("stats blocked behind the pending write")
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	c := NewTCPClient("127.0.0.1:1", io.Discard)
	err := c.Connect(context.Background())
	assert.Error(t, err)
}

func TestClient_DefaultHandlerPrints(t *testing.T) {
	server := startRelay(t)
	addr := server.ListenAddr().String()

	var out lockedBuffer
	printer := NewTCPClient(addr, &out)
	require.NoError(t, printer.Connect(context.Background()))
	printer.StartReceiving()
	defer printer.Close()

	sender, _ := connect(t, addr)
	require.Eventually(t, func() bool { return server.Manager.Count() == 2 }, 2*time.Second, 10*time.Millisecond)
	sender.SetVersion(102)
	require.NoError(t, sender.Send(77, "hi"))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Received Msg Type: 77; Msg: hi")
	}, 2*time.Second, 10*time.Millisecond)
}
