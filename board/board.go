// Package board composes the logger, the control input decode, and an
// optional LED indicator behind a single periodic entry point, the way a
// board package wires peripherals behind board-level accessors.
package board

import (
	"log"

	"github.com/bartslinger/paparazzi-unittest/indicator"
	"github.com/bartslinger/paparazzi-unittest/rcinput"
	"github.com/bartslinger/paparazzi-unittest/sdcard"
	"github.com/bartslinger/paparazzi-unittest/sdlog"
)

// Logger is the capability board.Station needs from the logger, narrowed
// to what a single tick and the telemetry transport require.
type Logger interface {
	Periodic(loggingRequested bool)
	CheckFreeSpace(n int) bool
	PutByte(b byte)
	SendMessage()
	CharAvailable() bool
	GetByte() byte
}

// Station wires a single logging station: an SD logger, its control
// switch, and an optional LED.
type Station struct {
	Logger Logger
	LED    *indicator.LED
}

// NewStation constructs a Station around driver. led may be nil.
func NewStation(driver sdcard.Driver, led *indicator.LED, diag *log.Logger) (*Station, error) {
	var ind sdlog.Indicator
	if led != nil {
		ind = led
	}
	l, err := sdlog.New(driver, ind, diag)
	if err != nil {
		return nil, err
	}
	return &Station{Logger: l, LED: led}, nil
}

// Tick runs one control cycle: decode the RC switch and drive the logger's
// state machine forward one step.
func (s *Station) Tick(rcSwitchValue int32) {
	s.Logger.Periodic(rcinput.Enabled(rcSwitchValue))
}
