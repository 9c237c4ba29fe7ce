// Package ratefilter implements the feedback filter used in the INDI rate
// control loop: a first order low-pass combined with a runtime-selectable
// integer sample delay and an actuator slew-rate limiter.
package ratefilter

// BufferSize is the capacity of the delay ring. Delay is clamped to
// BufferSize-1 samples.
const BufferSize = 32

// SamplePeriodHz is the fixed rate at which Propagate is expected to be
// called; the low-pass coefficient is derived against it.
const SamplePeriodHz = 512

// Filter is a first order low-pass filter with a selectable output delay
// and a slew-rate limiter on its internal state. All arithmetic is integer;
// the low-pass coefficient is never materialized as a separately rounded
// fraction, it is recomputed from Omega on every Propagate call using exact
// integer division scaled by SamplePeriodHz.
type Filter struct {
	Omega  uint32 // low-pass bandwidth, rad/s, >= 1
	Delay  uint8  // output delay in samples, clamped to BufferSize-1
	MaxInc uint32 // per-step slew limit on the filtered state

	buffer [BufferSize]int32
	idx    int
	prev   int32 // y[n-1], the undelayed filter state
}

// New returns an initialized Filter. Delay is silently clamped.
func New(omega uint32, delay uint8, maxInc uint32) *Filter {
	f := &Filter{}
	f.Initialize(omega, delay, maxInc)
	return f
}

// Initialize resets the filter to the given parameters, zeroing the delay
// buffer and the running state.
func (f *Filter) Initialize(omega uint32, delay uint8, maxInc uint32) {
	f.Omega = omega
	f.MaxInc = maxInc
	f.SetDelay(delay)
	f.buffer = [BufferSize]int32{}
	f.idx = 0
	f.prev = 0
}

// SetOmega updates the low-pass bandwidth. The running state and delay
// buffer contents are preserved.
func (f *Filter) SetOmega(omega uint32) {
	f.Omega = omega
}

// SetDelay updates the output delay, clamping to BufferSize-1. The delay
// buffer contents are not reshuffled.
func (f *Filter) SetDelay(delay uint8) {
	if delay > BufferSize-1 {
		delay = BufferSize - 1
	}
	f.Delay = delay
}

// Propagate advances the filter by one sample and returns the delayed,
// slew-limited output.
//
// y[n] = alpha*y[n-1] + (1-alpha)*u[n], alpha = 1/(1+omega*Ts), Ts = 1/SamplePeriodHz
//
// realized without rounding error as the exact-rational step
//
//	y[n] = floor((SamplePeriodHz*y[n-1] + omega*u[n]) / (SamplePeriodHz+omega))
func (f *Filter) Propagate(input int32) int32 {
	num := int64(SamplePeriodHz)*int64(f.prev) + int64(f.Omega)*int64(input)
	den := int64(SamplePeriodHz) + int64(f.Omega)
	y := floorDiv(num, den)

	if delta := y - int64(f.prev); delta > int64(f.MaxInc) {
		y = int64(f.prev) + int64(f.MaxInc)
	} else if delta < -int64(f.MaxInc) {
		y = int64(f.prev) - int64(f.MaxInc)
	}

	f.prev = int32(y)
	f.buffer[f.idx] = f.prev
	f.idx = (f.idx + 1) % BufferSize

	readIdx := euclideanMod(f.idx-int(f.Delay)-1, BufferSize)
	return f.buffer[readIdx]
}

// floorDiv divides rounding toward negative infinity, matching the flight
// code's treatment of the filter step as an exact rational rather than a
// truncated fixed-point multiply.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// euclideanMod returns a non-negative remainder of a mod m, for m > 0.
func euclideanMod(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}
