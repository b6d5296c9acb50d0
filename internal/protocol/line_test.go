package protocol

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedConn answers each written command with pre-split reply chunks
type scriptedConn struct {
	mu       sync.Mutex
	open     bool
	opens    int
	replies  map[string][]string
	pending  []string
	written  []string
	writeErr error
}

func newScriptedConn(replies map[string][]string) *scriptedConn {
	return &scriptedConn{replies: replies}
}

func (s *scriptedConn) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.opens++
	return nil
}

func (s *scriptedConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *scriptedConn) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *scriptedConn) Write(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	cmd := strings.TrimSuffix(string(data), "\r")
	s.written = append(s.written, cmd)
	s.pending = append([]string(nil), s.replies[cmd]...)
	return nil
}

func (s *scriptedConn) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	s.mu.Lock()
	if len(s.pending) > 0 {
		chunk := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()
		return []byte(chunk), nil
	}
	s.mu.Unlock()
	time.Sleep(time.Millisecond)
	return nil, nil
}

func (s *scriptedConn) GetProtocolType() ConnectionType { return ConnectionTypeSerial }

func (s *scriptedConn) Stats() ProtocolStats { return ProtocolStats{} }

func TestLineClientAssemblesChunkedReply(t *testing.T) {
	conn := newScriptedConn(map[string][]string{
		"P1": {"5.23", "E-0", "5\r"},
	})
	client := NewLineClient(conn, LineOptions{ReplyTimeout: 100 * time.Millisecond}, zaptest.NewLogger(t))

	reply, err := client.Exchange(context.Background(), "P1", 0)
	require.NoError(t, err)
	assert.Equal(t, "5.23E-05", reply)
	assert.Equal(t, 1, conn.opens)
	assert.Equal(t, []string{"P1"}, conn.written)
}

func TestLineClientNoReply(t *testing.T) {
	conn := newScriptedConn(nil)
	client := NewLineClient(conn, LineOptions{ReplyTimeout: 20 * time.Millisecond}, zaptest.NewLogger(t))

	start := time.Now()
	_, err := client.Exchange(context.Background(), "P2", 0)
	assert.True(t, errors.Is(err, ErrNoReply))
	assert.Less(t, time.Since(start), time.Second)
}

func TestLineClientReturnsUnterminatedReply(t *testing.T) {
	conn := newScriptedConn(map[string][]string{"VER": {"1.12"}})
	client := NewLineClient(conn, LineOptions{ReplyTimeout: 20 * time.Millisecond}, zaptest.NewLogger(t))

	reply, err := client.Exchange(context.Background(), "VER", 0)
	require.NoError(t, err)
	assert.Equal(t, "1.12", reply)
}

func TestLineClientReopensAfterWriteFailure(t *testing.T) {
	conn := newScriptedConn(map[string][]string{"P1": {"LO\r"}})
	conn.writeErr = errors.New("broken pipe")
	client := NewLineClient(conn, LineOptions{ReplyTimeout: 20 * time.Millisecond}, zaptest.NewLogger(t))

	_, err := client.Exchange(context.Background(), "P1", 0)
	require.Error(t, err)
	assert.False(t, conn.IsOpen())

	conn.writeErr = nil
	reply, err := client.Exchange(context.Background(), "P1", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "LO", reply)
	assert.Equal(t, 2, conn.opens)
}

func TestParseTarget(t *testing.T) {
	kind, host, port, err := ParseTarget("tcp://moxa-01:4001")
	require.NoError(t, err)
	assert.Equal(t, ConnectionTypeTCP, kind)
	assert.Equal(t, "moxa-01", host)
	assert.Equal(t, 4001, port)

	kind, host, _, err = ParseTarget("/dev/ttyUSB0")
	require.NoError(t, err)
	assert.Equal(t, ConnectionTypeSerial, kind)
	assert.Equal(t, "/dev/ttyUSB0", host)

	_, _, _, err = ParseTarget("")
	assert.Error(t, err)
	_, _, _, err = ParseTarget("tcp://moxa-01")
	assert.Error(t, err)
	_, _, _, err = ParseTarget("tcp://moxa-01:http")
	assert.Error(t, err)
}

func TestCreateProtocolAppliesSerialDefaults(t *testing.T) {
	p, err := CreateProtocol("/dev/ttyS3", SerialConfig{Timeout: 50 * time.Millisecond}, TCPConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	sc, ok := p.(*SerialConnection)
	require.True(t, ok)
	assert.Equal(t, 9600, sc.config.BaudRate)
	assert.Equal(t, "/dev/ttyS3", sc.config.Port)
	assert.False(t, sc.IsOpen())

	p, err = CreateProtocol("tcp://10.0.0.5:4001", SerialConfig{}, TCPConfig{ReadTimeout: time.Second}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, ConnectionTypeTCP, p.GetProtocolType())
	assert.Equal(t, "10.0.0.5:4001", p.(*TCPConnection).Address())
}
