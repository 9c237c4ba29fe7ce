// Command groundlink opens a physical UART from a ground station and copies
// every byte it receives to standard output. It does not use the logger's
// transport adapter and applies no backpressure.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"go.bug.st/serial"
)

const resetDelay = 2 * time.Second

// Link is a synchronous byte I/O connection to a ground-linked device.
type Link struct {
	port serial.Port
	log  *log.Logger
}

// NoResponseError reports that no byte arrived within the requested
// timeout.
type NoResponseError time.Duration

func (e NoResponseError) Error() string {
	return fmt.Sprintf("groundlink: no response after %v", time.Duration(e))
}

// Open opens deviceName at baudRate and waits out the device's reset delay.
func Open(deviceName string, baudRate int, logger *log.Logger) (*Link, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(deviceName, mode)
	if err != nil {
		return nil, fmt.Errorf("groundlink: open %s: %w", deviceName, err)
	}

	logger.Printf("opened %s at %d baud, waiting %s for device reset", deviceName, baudRate, resetDelay)
	time.Sleep(resetDelay)

	return &Link{port: port, log: logger}, nil
}

// ReadFor reads one byte, waiting up to timeout.
func (l *Link) ReadFor(timeout time.Duration) (byte, error) {
	b := make([]byte, 1)
	l.port.SetReadTimeout(timeout)

	var n int
	var err error
	for {
		n, err = l.port.Read(b)
		if !isRetryableSyscallError(err) {
			break
		}
		if n != 0 {
			panic("groundlink: bytes returned despite EINTR")
		}
	}
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, NoResponseError(timeout)
	}
	return b[0], nil
}

// Write writes b with a single port write, retrying on EINTR; a short write
// is reported as an error.
func (l *Link) Write(b []byte) error {
	var n int
	var err error
	for {
		n, err = l.port.Write(b)
		if !isRetryableSyscallError(err) {
			break
		}
		if n != 0 {
			panic("groundlink: bytes written despite EINTR")
		}
	}
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("groundlink: short write, wrote %d of %d bytes", n, len(b))
	}
	return nil
}

// Close closes the underlying port.
func (l *Link) Close() error {
	if l.port == nil {
		return fmt.Errorf("groundlink: close: port not open")
	}
	err := l.port.Close()
	l.port = nil
	return err
}

func isRetryableSyscallError(err error) bool {
	const eIntr = 4
	if errno, ok := err.(syscall.Errno); ok {
		return errno == eIntr
	}
	return false
}

func main() {
	device := flag.String("device", "/dev/ttyUSB0", "serial device to bridge")
	baud := flag.Int("baud", 115200, "baud rate")
	flag.Parse()

	logger := log.New(os.Stderr, "groundlink: ", log.LstdFlags)

	link, err := Open(*device, *baud, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer link.Close()

	for {
		b, err := link.ReadFor(5 * time.Second)
		if err != nil {
			if _, ok := err.(NoResponseError); ok {
				continue
			}
			logger.Fatal(err)
		}
		os.Stdout.Write([]byte{b})
	}
}
