// Package link carries the bidirectional serial channel to the
// microcontroller: fixed-size command packets out at the loop rate,
// telemetry frames in on a reader goroutine that only ever overwrites a
// latest-value slot.
package link

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/open-quad/controller/pkg/config"
	"github.com/open-quad/controller/pkg/control"
	customlog "github.com/open-quad/controller/pkg/log"
)

// Stats is a snapshot of the link health counters.
type Stats struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesBad      uint64 `json:"frames_bad"`
	CommandsSent   uint64 `json:"commands_sent"`
}

// Link implements control.Link over a serial port. Send is called only from
// the control goroutine; the reader goroutine shares nothing with it but the
// telemetry slot.
type Link struct {
	port   io.ReadWriteCloser
	logger customlog.Logger
	now    func() time.Time

	telem control.Slot[control.Telemetry]

	framesReceived atomic.Uint64
	framesBad      atomic.Uint64
	commandsSent   atomic.Uint64

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ control.Link = (*Link)(nil)

// Open opens the configured serial endpoint. Failure here is fatal at
// start-up: a robot with no hardware link has nothing to control.
func Open(cfg config.SerialConfig, logger customlog.Logger) (*Link, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port '%s': %w", cfg.Port, err)
	}
	logger.Infof("Serial link open on %s at %d baud", cfg.Port, cfg.Baud)
	return New(port, logger), nil
}

// New wraps an already-open port. Tests use this with an in-memory pipe.
func New(port io.ReadWriteCloser, logger customlog.Logger) *Link {
	return &Link{
		port:   port,
		logger: logger,
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// Start launches the telemetry reader goroutine.
func (l *Link) Start() {
	l.wg.Add(1)
	go l.readFrames()
}

// Send transmits one command packet.
func (l *Link) Send(cmd control.Command) error {
	pkt := EncodeCommand(cmd)
	if _, err := l.port.Write(pkt[:]); err != nil {
		return fmt.Errorf("serial write failed: %w", err)
	}
	l.commandsSent.Add(1)
	return nil
}

// Receive returns the latest telemetry frame, if any has arrived yet. It
// never blocks.
func (l *Link) Receive() (control.Telemetry, bool) {
	return l.telem.Latest()
}

// Stats returns the health counters.
func (l *Link) Stats() Stats {
	return Stats{
		FramesReceived: l.framesReceived.Load(),
		FramesBad:      l.framesBad.Load(),
		CommandsSent:   l.commandsSent.Load(),
	}
}

// Close shuts the reader down and closes the port.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.port.Close()
		l.wg.Wait()
	})
	return err
}

// readFrames resynchronizes on the telemetry magic and overwrites the slot
// with every valid frame. Dropped or corrupt bytes cost at most one frame.
func (l *Link) readFrames() {
	defer l.wg.Done()

	r := bufio.NewReaderSize(l.port, 4*TelemetryFrameSize)
	frame := make([]byte, TelemetryFrameSize)

	for {
		if l.closed() {
			return
		}

		b, err := r.ReadByte()
		if err != nil {
			l.readStopped(err)
			return
		}
		if b != telemetryMagic[0] {
			continue
		}
		b2, err := r.ReadByte()
		if err != nil {
			l.readStopped(err)
			return
		}
		if b2 != telemetryMagic[1] {
			// First magic byte may restart a frame.
			if b2 == telemetryMagic[0] {
				_ = r.UnreadByte()
			}
			continue
		}

		frame[0], frame[1] = b, b2
		if _, err := io.ReadFull(r, frame[2:]); err != nil {
			l.readStopped(err)
			return
		}

		t, err := DecodeTelemetry(frame, l.now())
		if err != nil {
			l.framesBad.Add(1)
			l.logger.Debugf("Dropping telemetry frame: %v", err)
			continue
		}
		l.framesReceived.Add(1)
		l.telem.Put(t)
	}
}

func (l *Link) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *Link) readStopped(err error) {
	if l.closed() || err == io.EOF {
		return
	}
	// The control loop notices a dead link through send failures; the
	// reader just stops.
	l.logger.Errorf("Telemetry reader stopped: %v", err)
}
