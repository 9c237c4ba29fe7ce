package sdcard

import (
	"fmt"

	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

// OpenSPI opens the physical SPI bus a vendor Driver implementation talks
// the card protocol over and negotiates the given speed and mode. It only
// establishes the connection; the SD command set, block addressing, and
// multi-write session handling remain the responsibility of the Driver
// implementation passed to a Logger.
func OpenSPI(busName string, maxSpeed physic.Frequency, mode spi.Mode) (spi.Conn, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("sdcard: init host drivers: %w", err)
	}

	port, err := spireg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("sdcard: open spi bus %q: %w", busName, err)
	}

	conn, err := port.Connect(maxSpeed, mode, 8)
	if err != nil {
		return nil, fmt.Errorf("sdcard: connect spi bus %q: %w", busName, err)
	}

	return conn, nil
}
