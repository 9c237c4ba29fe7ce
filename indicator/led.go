// Package indicator drives a logging-state LED the way the board's other
// GPIO-backed LEDs are driven: active-low, Low() meaning on.
package indicator

// Pin is the narrow GPIO capability an LED needs.
type Pin interface {
	Low()
	High()
}

// LED reflects the logger's Logging state on a single active-low GPIO pin.
type LED struct {
	pin Pin
}

// New wraps pin as an LED. pin starts High (off).
func New(pin Pin) *LED {
	l := &LED{pin: pin}
	l.Set(false)
	return l
}

// Set turns the LED on or off.
func (l *LED) Set(on bool) {
	if l.pin == nil {
		return
	}
	if on {
		l.pin.Low()
	} else {
		l.pin.High()
	}
}
