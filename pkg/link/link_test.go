package link

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-quad/controller/pkg/control"
)

type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...interface{}) {}
func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Warnf(format string, args ...interface{})  {}
func (nopLogger) Errorf(format string, args ...interface{}) {}
func (nopLogger) Fatalf(format string, args ...interface{}) {}

// fakePort replays a canned byte stream and captures writes.
type fakePort struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func newFakePort(stream []byte) *fakePort {
	return &fakePort{in: bytes.NewReader(stream)}
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }
func (p *fakePort) Close() error                { return nil }

func waitForFrames(t *testing.T, l *Link, want uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.Stats().FramesReceived >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %d", want, l.Stats().FramesReceived)
}

func TestSendEncodesCommandPacket(t *testing.T) {
	port := newFakePort(nil)
	l := New(port, nopLogger{})

	cmd := control.Command{LinearX: 0.5, AngularZ: -1, TargetMode: control.ModePolicyWalk}
	require.NoError(t, l.Send(cmd))

	assert.Equal(t, CommandPacketSize, port.out.Len())
	out, err := DecodeCommand(port.out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, out)
	assert.Equal(t, uint64(1), l.Stats().CommandsSent)
}

func TestReaderResyncsAcrossGarbage(t *testing.T) {
	first := EncodeTelemetry(control.Telemetry{Roll: 0.25}, 1)
	second := EncodeTelemetry(control.Telemetry{Roll: 0.5}, 2)

	var stream []byte
	stream = append(stream, 0x00, 0x5A, 0x13, 0x37) // noise, incl. a lone magic byte
	stream = append(stream, first[:]...)
	stream = append(stream, 0xFF, 0xFF)
	stream = append(stream, second[:]...)

	l := New(newFakePort(stream), nopLogger{})
	l.Start()
	defer l.Close()

	waitForFrames(t, l, 2)

	telem, ok := l.Receive()
	require.True(t, ok)
	assert.InDelta(t, 0.5, telem.Roll, 1e-9)
	assert.Equal(t, uint64(0), l.Stats().FramesBad)
}

func TestReaderDropsCorruptFrame(t *testing.T) {
	bad := EncodeTelemetry(control.Telemetry{Roll: 1}, 1)
	bad[20] ^= 0x01
	good := EncodeTelemetry(control.Telemetry{Roll: 2}, 2)

	var stream []byte
	stream = append(stream, bad[:]...)
	stream = append(stream, good[:]...)

	l := New(newFakePort(stream), nopLogger{})
	l.Start()
	defer l.Close()

	waitForFrames(t, l, 1)

	telem, ok := l.Receive()
	require.True(t, ok)
	assert.InDelta(t, 2.0, telem.Roll, 1e-9)
	assert.Equal(t, uint64(1), l.Stats().FramesBad)
}

func TestReceiveEmptyBeforeFirstFrame(t *testing.T) {
	l := New(newFakePort(nil), nopLogger{})
	_, ok := l.Receive()
	assert.False(t, ok)
}
