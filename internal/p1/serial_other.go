//go:build !linux

package p1

import (
	"fmt"
	"os"
)

// openSerial opens the device as-is; line settings must be applied with stty.
func openSerial(device string, _ int, _ string) (*os.File, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	return f, nil
}
