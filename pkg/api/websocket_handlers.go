package api

import (
	"encoding/json"
	"errors"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"

	customlog "github.com/open-quad/controller/pkg/log"
	"github.com/open-quad/controller/pkg/teleop"
)

// InputWebSocketHandler feeds operator gamepad frames into the teleop input
// slot. It is one producer among possibly several; the control loop only
// ever sees the latest sample.
func InputWebSocketHandler(conn *websocket.Conn, logger customlog.Logger, push func(teleop.RawSample)) {
	logger.Infof("Input WebSocket connected: %s", conn.RemoteAddr())
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			logWSClose(logger, "Input", err)
			break
		}
		if mt != websocket.TextMessage {
			logger.Infof("Ignoring non-text input WS message type: %d", mt)
			continue
		}

		var frame GamepadMsg
		if err := json.Unmarshal(msg, &frame); err != nil {
			logger.Warnf("Failed to unmarshal gamepad frame from WS: %v. Message: %s", err, string(msg))
			continue
		}

		push(teleop.RawSample{
			Axes:    frame.Axes,
			Buttons: frame.Buttons,
			Time:    time.Now(),
		})
	}
	logger.Infof("Input WebSocket disconnected: %s", conn.RemoteAddr())
}

// StateWebSocketHandler streams loop statistics to a monitoring client at a
// fixed interval until the connection drops.
func StateWebSocketHandler(conn *websocket.Conn, logger customlog.Logger, snapshot func() interface{}, interval time.Duration) {
	logger.Infof("State WebSocket connected: %s", conn.RemoteAddr())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(snapshot()); err != nil {
			logWSClose(logger, "State", err)
			break
		}
	}
	logger.Infof("State WebSocket disconnected: %s", conn.RemoteAddr())
}

func logWSClose(logger customlog.Logger, name string, err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
		logger.Errorf("%s WS error: %v", name, err)
		return
	}
	if err != websocket.ErrCloseSent && !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
		logger.Infof("%s WS connection closed: %v", name, err)
	} else {
		logger.Infof("%s WS connection closed normally.", name)
	}
}
