//go:build linux

package p1

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	115200: unix.B115200,
}

// openSerial opens a P1 port in raw mode: 9600 7E1 for DSMR 2.2/3 meters,
// 115200 8N1 for DSMR 4 and later.
func openSerial(device string, baud int, mode string) (*os.File, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return nil, fmt.Errorf("unsupported baud rate %d", baud)
	}

	f, err := os.OpenFile(device, os.O_RDONLY|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}

	fd := int(f.Fd())
	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("get termios %s: %w", device, err)
	}

	tio.Iflag = 0
	tio.Oflag = 0
	tio.Lflag = 0
	tio.Cflag = unix.CREAD | unix.CLOCAL | speed
	switch mode {
	case "7E1":
		tio.Cflag |= unix.CS7 | unix.PARENB
	case "8N1":
		tio.Cflag |= unix.CS8
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported serial mode %q", mode)
	}
	tio.Ispeed = speed
	tio.Ospeed = speed
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		f.Close()
		return nil, fmt.Errorf("set termios %s: %w", device, err)
	}
	return f, nil
}
