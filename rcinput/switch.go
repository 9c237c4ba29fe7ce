// Package rcinput decodes the logging-enable radio control channel.
package rcinput

// MaxPprz is the system's fixed-point full-scale constant.
const MaxPprz = 9600

// Enabled reports whether a signed RC channel value in
// [-MaxPprz, +MaxPprz] requests logging to be on. There is no hysteresis;
// callers act on this once per tick.
func Enabled(value int32) bool {
	return value > 0
}
