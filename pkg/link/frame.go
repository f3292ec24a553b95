package link

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/open-quad/controller/pkg/control"
)

// Wire format to the microcontroller. Both directions use fixed-size
// little-endian packets with a two-byte magic, a version byte and a trailing
// XOR checksum; the firmware resynchronizes on the magic after dropped bytes.
const (
	ProtocolVersion = 1

	// CommandPacketSize: magic(2) version(1) mode(1) vx,vy,vz,wz(16)
	// reserved(3) checksum(1).
	CommandPacketSize = 24

	// TelemetryFrameSize: magic(2) version(1) seq(1) joints(48)
	// roll,pitch,yaw(12) battery(4) reserved(3) checksum(1).
	TelemetryFrameSize = 72
)

var (
	commandMagic   = [2]byte{0xA5, 0x5A}
	telemetryMagic = [2]byte{0x5A, 0xA5}
)

var (
	ErrShortFrame   = errors.New("telemetry frame too short")
	ErrBadMagic     = errors.New("telemetry frame has wrong magic")
	ErrBadVersion   = errors.New("telemetry frame has unsupported version")
	ErrBadChecksum  = errors.New("telemetry frame checksum mismatch")
	ErrShortCommand = errors.New("command packet too short")
)

// EncodeCommand serializes one actuator command packet.
func EncodeCommand(cmd control.Command) [CommandPacketSize]byte {
	var pkt [CommandPacketSize]byte
	pkt[0] = commandMagic[0]
	pkt[1] = commandMagic[1]
	pkt[2] = ProtocolVersion
	pkt[3] = byte(cmd.TargetMode)
	putFloat32(pkt[4:8], cmd.LinearX)
	putFloat32(pkt[8:12], cmd.LinearY)
	putFloat32(pkt[12:16], cmd.LinearZ)
	putFloat32(pkt[16:20], cmd.AngularZ)
	pkt[CommandPacketSize-1] = checksum(pkt[:CommandPacketSize-1])
	return pkt
}

// DecodeCommand parses a command packet. Used by tests and bench harnesses
// standing in for the firmware.
func DecodeCommand(buf []byte) (control.Command, error) {
	if len(buf) < CommandPacketSize {
		return control.Command{}, ErrShortCommand
	}
	if buf[0] != commandMagic[0] || buf[1] != commandMagic[1] {
		return control.Command{}, ErrBadMagic
	}
	if buf[2] != ProtocolVersion {
		return control.Command{}, ErrBadVersion
	}
	if checksum(buf[:CommandPacketSize-1]) != buf[CommandPacketSize-1] {
		return control.Command{}, ErrBadChecksum
	}
	return control.Command{
		TargetMode: control.Mode(buf[3]),
		LinearX:    getFloat32(buf[4:8]),
		LinearY:    getFloat32(buf[8:12]),
		LinearZ:    getFloat32(buf[12:16]),
		AngularZ:   getFloat32(buf[16:20]),
	}, nil
}

// EncodeTelemetry serializes a telemetry frame. The controller itself only
// decodes; encoding exists for tests and the firmware simulator.
func EncodeTelemetry(t control.Telemetry, seq byte) [TelemetryFrameSize]byte {
	var frame [TelemetryFrameSize]byte
	frame[0] = telemetryMagic[0]
	frame[1] = telemetryMagic[1]
	frame[2] = ProtocolVersion
	frame[3] = seq
	for i := 0; i < control.NumJoints; i++ {
		putFloat32(frame[4+i*4:8+i*4], t.JointAngles[i])
	}
	putFloat32(frame[52:56], t.Roll)
	putFloat32(frame[56:60], t.Pitch)
	putFloat32(frame[60:64], t.Yaw)
	putFloat32(frame[64:68], t.BatteryVoltage)
	frame[TelemetryFrameSize-1] = checksum(frame[:TelemetryFrameSize-1])
	return frame
}

// DecodeTelemetry parses a telemetry frame and stamps it with the receive
// time; staleness checks downstream are relative to that stamp.
func DecodeTelemetry(buf []byte, now time.Time) (control.Telemetry, error) {
	if len(buf) < TelemetryFrameSize {
		return control.Telemetry{}, ErrShortFrame
	}
	if buf[0] != telemetryMagic[0] || buf[1] != telemetryMagic[1] {
		return control.Telemetry{}, ErrBadMagic
	}
	if buf[2] != ProtocolVersion {
		return control.Telemetry{}, ErrBadVersion
	}
	if checksum(buf[:TelemetryFrameSize-1]) != buf[TelemetryFrameSize-1] {
		return control.Telemetry{}, ErrBadChecksum
	}

	var t control.Telemetry
	for i := 0; i < control.NumJoints; i++ {
		t.JointAngles[i] = getFloat32(buf[4+i*4 : 8+i*4])
	}
	t.Roll = getFloat32(buf[52:56])
	t.Pitch = getFloat32(buf[56:60])
	t.Yaw = getFloat32(buf[60:64])
	t.BatteryVoltage = getFloat32(buf[64:68])
	t.Timestamp = now
	return t, nil
}

func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum ^= v
	}
	return sum
}

func putFloat32(dst []byte, v float64) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
}

func getFloat32(src []byte) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(src)))
}
