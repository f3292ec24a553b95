package zeromq

import (
	"encoding/json"
	"testing"

	"github.com/pebbe/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...interface{}) {}
func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Warnf(format string, args ...interface{})  {}
func (nopLogger) Errorf(format string, args ...interface{}) {}
func (nopLogger) Fatalf(format string, args ...interface{}) {}

// testService builds a service around an inert socket so the queue and
// dispatch paths can be exercised without binding anything.
func testService(queueSize int) *Service {
	return &Service{
		pub:       &zmq4.Socket{},
		handlers:  make(map[string]MessageHandler),
		queue:     make(chan pubItem, queueSize),
		sessionID: "test-session",
		logger:    nopLogger{},
		running:   true,
	}
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	s := testService(1)

	require.NoError(t, s.PublishJSON(TopicMode, MsgTypeModeChange, map[string]string{"to": "STANDING"}))
	// Queue is full now; the second publish must drop, not block.
	require.NoError(t, s.PublishJSON(TopicMode, MsgTypeModeChange, map[string]string{"to": "IDLE"}))

	assert.Equal(t, 1, len(s.queue))

	item := <-s.queue
	assert.Equal(t, TopicMode, item.topic)
	var env Envelope
	require.NoError(t, json.Unmarshal(item.payload, &env))
	assert.Equal(t, MsgTypeModeChange, env.Type)
	assert.Equal(t, "test-session", env.SessionID)
}

func TestPublishAfterStopRejected(t *testing.T) {
	s := testService(1)
	s.running = false

	err := s.PublishJSON(TopicCondition, MsgTypeCondition, nil)
	assert.ErrorIs(t, err, ErrServiceClosed)
}

func TestDispatchRoutesByType(t *testing.T) {
	s := testService(1)
	s.RegisterHandler(MsgTypeStateRequest, HandlerFunc(func(data []byte) ([]byte, error) {
		return s.Reply(MsgTypeStateResponse, map[string]string{"mode": "IDLE"})
	}))

	req, err := json.Marshal(Envelope{Type: MsgTypeStateRequest, SessionID: "client"})
	require.NoError(t, err)

	resp, err := s.dispatch(req)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(resp, &env))
	assert.Equal(t, MsgTypeStateResponse, env.Type)
}

func TestDispatchUnknownType(t *testing.T) {
	s := testService(1)

	req, _ := json.Marshal(Envelope{Type: "BOGUS"})
	_, err := s.dispatch(req)
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestDispatchMalformedEnvelope(t *testing.T) {
	s := testService(1)

	_, err := s.dispatch([]byte("not json"))
	assert.Error(t, err)
}
