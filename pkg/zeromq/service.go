// Package zeromq exposes the controller to offboard monitoring tools: a PUB
// socket streaming mode transitions, fault conditions and telemetry, and an
// optional REP socket answering config/state requests. Nothing in here may
// block the control loop; publishing goes through a bounded queue that drops
// on overflow.
package zeromq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/open-quad/controller/pkg/config"
	customlog "github.com/open-quad/controller/pkg/log"
)

// Common errors
var (
	ErrServiceClosed      = errors.New("zeromq service is closed")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Message types
const (
	MsgTypeConfigRequest  = "CONFIG_REQUEST"
	MsgTypeConfigResponse = "CONFIG_RESPONSE"
	MsgTypeStateRequest   = "STATE_REQUEST"
	MsgTypeStateResponse  = "STATE_RESPONSE"
	MsgTypeModeChange     = "MODE_CHANGE"
	MsgTypeCondition      = "CONDITION"
	MsgTypeTelemetry      = "TELEMETRY"
	MsgTypeError          = "ERROR"
)

// Envelope is the JSON wrapper around every message on either socket.
type Envelope struct {
	Type      string      `json:"type"`
	Timestamp float64     `json:"timestamp"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
}

// ErrorResponse is the payload of MsgTypeError replies.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// MessageHandler processes one request type on the REP socket.
type MessageHandler interface {
	HandleMessage(data []byte) ([]byte, error)
}

// HandlerFunc adapts a function to MessageHandler.
type HandlerFunc func(data []byte) ([]byte, error)

// HandleMessage calls the function
func (f HandlerFunc) HandleMessage(data []byte) ([]byte, error) {
	return f(data)
}

type pubItem struct {
	topic   string
	payload []byte
}

// Service owns the ZeroMQ sockets. Either socket is optional; an empty bind
// address in the config disables it.
type Service struct {
	zctx      *zmq4.Context
	pub       *zmq4.Socket
	rep       *zmq4.Socket
	poller    *zmq4.Poller
	handlers  map[string]MessageHandler
	queue     chan pubItem
	sessionID string
	logger    customlog.Logger

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

const socketTimeout = 1 * time.Second

// NewService creates the sockets and binds them. Call Start to begin
// serving.
func NewService(cfg config.ZeroMQConfig, sessionID string, logger customlog.Logger) (*Service, error) {
	zctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create zeromq context: %w", err)
	}

	s := &Service{
		zctx:      zctx,
		handlers:  make(map[string]MessageHandler),
		queue:     make(chan pubItem, cfg.PublishQueueSize),
		sessionID: sessionID,
		logger:    logger,
	}

	if cfg.PublishBindAddress != "" {
		pub, err := newBoundSocket(zctx, zmq4.PUB, cfg.PublishBindAddress)
		if err != nil {
			return nil, err
		}
		s.pub = pub
		logger.Infof("ZeroMQ publisher bound to %s", cfg.PublishBindAddress)
	}

	if cfg.RequestBindAddress != "" {
		rep, err := newBoundSocket(zctx, zmq4.REP, cfg.RequestBindAddress)
		if err != nil {
			return nil, err
		}
		s.rep = rep
		s.poller = zmq4.NewPoller()
		s.poller.Add(rep, zmq4.POLLIN)
		logger.Infof("ZeroMQ responder bound to %s", cfg.RequestBindAddress)
	}

	return s, nil
}

func newBoundSocket(zctx *zmq4.Context, typ zmq4.Type, addr string) (*zmq4.Socket, error) {
	socket, err := zctx.NewSocket(typ)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}
	if err := socket.Bind(addr); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", addr, err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.SetRcvtimeo(socketTimeout); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set receive timeout: %w", err)
	}
	if err := socket.SetSndtimeo(socketTimeout); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set send timeout: %w", err)
	}
	return socket, nil
}

// RegisterHandler installs the handler for one request message type.
func (s *Service) RegisterHandler(msgType string, handler MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[msgType] = handler
}

// Start launches the publish and receive loops.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	if s.pub != nil {
		s.wg.Add(1)
		go s.publishLoop()
	}
	if s.rep != nil {
		s.wg.Add(1)
		go s.receiveLoop()
	}
}

// Stop shuts both loops down and closes the sockets.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.queue)
	s.wg.Wait()

	if s.pub != nil {
		s.pub.Close()
	}
	if s.rep != nil {
		s.rep.Close()
	}
	s.logger.Infof("ZeroMQ service stopped")
}

func (s *Service) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// PublishJSON wraps data in an envelope and enqueues it for the PUB socket.
// A full queue drops the message; monitoring must never stall the robot.
func (s *Service) PublishJSON(topic, msgType string, data interface{}) error {
	if s.pub == nil {
		return nil
	}
	if !s.isRunning() {
		return ErrServiceClosed
	}

	payload, err := json.Marshal(Envelope{
		Type:      msgType,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		SessionID: s.sessionID,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", msgType, err)
	}

	select {
	case s.queue <- pubItem{topic: topic, payload: payload}:
		return nil
	default:
		s.logger.Warnf("Publish queue full, dropping %s message for topic %s", msgType, topic)
		return nil
	}
}

func (s *Service) publishLoop() {
	defer s.wg.Done()
	for item := range s.queue {
		if _, err := s.pub.SendMessage(item.topic, item.payload); err != nil && s.isRunning() {
			s.logger.Errorf("Error publishing to topic %s: %v", item.topic, err)
		}
	}
}

func (s *Service) receiveLoop() {
	defer s.wg.Done()

	for s.isRunning() {
		sockets, err := s.poller.Poll(500 * time.Millisecond)
		if err != nil {
			if s.isRunning() {
				s.logger.Errorf("Error polling socket: %v", err)
			}
			continue
		}
		if len(sockets) == 0 {
			continue
		}

		msg, err := s.rep.RecvBytes(0)
		if err != nil {
			if s.isRunning() {
				s.logger.Errorf("Error receiving request: %v", err)
			}
			continue
		}

		response, err := s.dispatch(msg)
		if err != nil {
			s.logger.Errorf("Error dispatching request: %v", err)
			response, _ = json.Marshal(Envelope{
				Type:      MsgTypeError,
				Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
				SessionID: s.sessionID,
				Data:      ErrorResponse{Message: err.Error(), Code: 500},
			})
		}
		if _, err := s.rep.SendBytes(response, 0); err != nil && s.isRunning() {
			s.logger.Errorf("Error sending response: %v", err)
		}
	}
}

func (s *Service) dispatch(msg []byte) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, fmt.Errorf("invalid request envelope: %w", err)
	}

	s.mu.Lock()
	handler, ok := s.handlers[env.Type]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, env.Type)
	}
	return handler.HandleMessage(msg)
}

// Reply builds a response envelope for a REP handler.
func (s *Service) Reply(msgType string, data interface{}) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      msgType,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		SessionID: s.sessionID,
		Data:      data,
	})
}
