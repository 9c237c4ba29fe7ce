// Package sdlog implements the direct-to-SD-card logger: a state machine
// that multiplexes a byte-stream telemetry transport onto raw, block
// aligned writes, arbitrating with an asynchronous card driver.
package sdlog

import (
	"errors"
	"log"

	"github.com/bartslinger/paparazzi-unittest/sdcard"
)

// OverflowBufferSize bounds the overflow buffer accumulated while the card
// is busy committing the previous block. Not fixed by the original source;
// sized generously enough to absorb one SPI round trip's worth of
// telemetry at typical log rates.
const OverflowBufferSize = 256

// IndexAddr is the fixed block address of the index record.
const IndexAddr uint32 = 0x2000

// LogStartAddr is the first address a log may occupy on a blank card.
const LogStartAddr uint32 = 0x4000

// indexPayloadHeaderSize is the number of payload bytes preceding the
// per-log slot table: 4 bytes next-available-address, 1 byte
// last-completed, 4 bytes alignment padding.
const indexPayloadHeaderSize = 9

// slotSize is the byte size of one log's index slot: a 4 byte start
// address followed by a 4 byte length in bytes.
const slotSize = 8

// MaxLogs is the number of slots the index page can hold.
const MaxLogs = (sdcard.BlockSize - indexPayloadHeaderSize) / slotSize

// State is one state of the logger's state machine.
type State int

const (
	StateInitializing State = iota
	StateRetrievingIndex
	StateReady
	StateLogging
	StateLoggingFinalBlock
	StateStoppedLogging
	StateGettingIndexForUpdate
	StateUpdatingIndex
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRetrievingIndex:
		return "retrieving-index"
	case StateReady:
		return "ready"
	case StateLogging:
		return "logging"
	case StateLoggingFinalBlock:
		return "logging-final-block"
	case StateStoppedLogging:
		return "stopped-logging"
	case StateGettingIndexForUpdate:
		return "getting-index-for-update"
	case StateUpdatingIndex:
		return "updating-index"
	default:
		return "unknown"
	}
}

// Indicator is the narrow capability the logger needs to reflect its
// Logging state, satisfied by indicator.LED.
type Indicator interface {
	Set(on bool)
}

// Logger is the direct-to-SD-card logger state machine. It is not safe for
// concurrent use; Periodic and the driver's completion callbacks are all
// expected to run from the same cooperative control loop.
type Logger struct {
	driver    sdcard.Driver
	indicator Indicator
	log       *log.Logger

	state State

	nextAvailableAddress uint32
	lastCompleted        uint8
	logLen               uint32

	sdcardBufIdx int
	buffer       [OverflowBufferSize]byte
	idx          int
}

// New constructs a Logger bound to driver. indicator and logger may be nil.
func New(driver sdcard.Driver, indicator Indicator, logger *log.Logger) (*Logger, error) {
	if driver == nil {
		return nil, errors.New("sdlog: driver must not be nil")
	}
	return &Logger{
		driver:       driver,
		indicator:    indicator,
		log:          logger,
		state:        StateInitializing,
		sdcardBufIdx: 1,
	}, nil
}

// State reports the logger's current state.
func (l *Logger) State() State {
	return l.state
}

// LastCompleted reports the ordinal of the most recently finalised log, or
// 0 if none has been completed yet.
func (l *Logger) LastCompleted() uint8 {
	return l.lastCompleted
}

func (l *Logger) logf(format string, args ...interface{}) {
	if l.log != nil {
		l.log.Printf(format, args...)
	}
}

func (l *Logger) transition(to State) {
	if l.state != to {
		l.logf("sdlog: %s -> %s", l.state, to)
	}
	l.state = to
}

// Periodic drives the state machine one tick. loggingRequested is the
// decoded control-input switch state (see rcinput.Enabled).
func (l *Logger) Periodic(loggingRequested bool) {
	status := l.driver.Status()
	if status == sdcard.StatusError {
		l.logf("sdlog: card reported error status in state %s", l.state)
	}

	switch l.state {
	case StateInitializing:
		if status == sdcard.StatusIdle {
			l.transition(StateRetrievingIndex)
			l.driver.ReadBlock(IndexAddr, l.onIndexReceived)
		}

	case StateRetrievingIndex:
		// waiting for onIndexReceived

	case StateReady:
		if loggingRequested && status == sdcard.StatusIdle {
			l.sdcardBufIdx = 1
			l.idx = 0
			l.logLen = 0
			l.driver.MultiWriteStart(l.nextAvailableAddress)
			if l.indicator != nil {
				l.indicator.Set(true)
			}
			l.transition(StateLogging)
		}

	case StateLogging:
		if !loggingRequested {
			l.transition(StateLoggingFinalBlock)
			return
		}
		if l.sdcardBufIdx == sdcard.BlockSize+1 && status == sdcard.StatusMultiWriteIdle {
			l.driver.MultiWriteNext(l.onWritten)
		}

	case StateLoggingFinalBlock:
		if status != sdcard.StatusMultiWriteIdle {
			return
		}
		if l.sdcardBufIdx > 1 {
			buf := l.driver.OutputBuf()
			for i := l.sdcardBufIdx; i <= sdcard.BlockSize; i++ {
				buf[i] = 0
			}
			l.driver.MultiWriteNext(l.onWritten)
			return
		}
		l.driver.MultiWriteStop()
		l.transition(StateStoppedLogging)

	case StateStoppedLogging:
		if status == sdcard.StatusIdle {
			l.transition(StateGettingIndexForUpdate)
			l.driver.ReadBlock(IndexAddr, l.onIndexReceivedForUpdate)
		}

	case StateGettingIndexForUpdate:
		// waiting for onIndexReceivedForUpdate

	case StateUpdatingIndex:
		if status == sdcard.StatusIdle {
			if l.indicator != nil {
				l.indicator.Set(false)
			}
			l.logLen = 0
			l.transition(StateReady)
		}
	}
}

// CheckFreeSpace reports whether n more bytes can be accepted right now.
func (l *Logger) CheckFreeSpace(n int) bool {
	if l.state != StateLogging {
		return false
	}
	free := (sdcard.BlockSize + 1 - l.sdcardBufIdx) + (OverflowBufferSize - l.idx)
	return free >= n
}

// PutByte appends one byte to the current block, spilling into the
// overflow buffer while the card is busy committing the previous block.
func (l *Logger) PutByte(b byte) {
	if l.sdcardBufIdx <= sdcard.BlockSize {
		buf := l.driver.OutputBuf()
		buf[l.sdcardBufIdx] = b
		l.sdcardBufIdx++
		if l.sdcardBufIdx == sdcard.BlockSize+1 && l.driver.Status() == sdcard.StatusMultiWriteIdle {
			l.driver.MultiWriteNext(l.onWritten)
		}
		return
	}
	if l.idx < OverflowBufferSize {
		l.buffer[l.idx] = b
		l.idx++
	}
}

// SendMessage is a no-op for byte-stream logging: framing lives entirely
// inside the payload bytes already accepted by PutByte.
func (l *Logger) SendMessage() {}

// CharAvailable always reports false: the logger is a write-only sink.
func (l *Logger) CharAvailable() bool { return false }

// GetByte always returns 0: the logger is a write-only sink.
func (l *Logger) GetByte() byte { return 0 }

func (l *Logger) onWritten() {
	buf := l.driver.OutputBuf()
	copy(buf[1:1+l.idx], l.buffer[:l.idx])
	l.sdcardBufIdx = l.idx + 1
	l.idx = 0
	l.logLen++
}

func (l *Logger) onIndexReceived() {
	in := l.driver.InputBuf()
	next := decodeU32(in[0:4])
	if next < LogStartAddr {
		next = LogStartAddr
	}
	l.nextAvailableAddress = next
	l.lastCompleted = in[4]
	l.transition(StateReady)
}

func (l *Logger) onIndexReceivedForUpdate() {
	in := l.driver.InputBuf()
	out := l.driver.OutputBuf()

	for i := 0; i < sdcard.BlockSize; i++ {
		out[i+1] = in[i]
	}

	oldNext := l.nextAvailableAddress
	newNext := oldNext + l.logLen*sdcard.BlockSize
	newLast := l.lastCompleted + 1

	encodeU32(out[1:5], newNext)
	out[5] = newLast

	slot := 1 + indexPayloadHeaderSize + slotSize*(int(newLast)-1)
	encodeU32(out[slot:slot+4], oldNext)
	encodeU32(out[slot+4:slot+8], l.logLen*sdcard.BlockSize)

	l.driver.WriteBlock(IndexAddr)

	l.nextAvailableAddress = newNext
	l.lastCompleted = newLast
	l.logLen = 0
	l.transition(StateUpdatingIndex)
}

func decodeU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func encodeU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
