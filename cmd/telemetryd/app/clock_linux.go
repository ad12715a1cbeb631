//go:build linux

package app

import (
	"fmt"
	"syscall"
	"time"
)

func setSystemTime(t time.Time) error {
	tv := syscall.NsecToTimeval(t.UnixNano())
	if err := syscall.Settimeofday(&tv); err != nil {
		return fmt.Errorf("setting system time: %w", err)
	}
	return nil
}
