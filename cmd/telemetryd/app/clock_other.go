//go:build !linux

package app

import (
	"errors"
	"time"
)

func setSystemTime(time.Time) error {
	return errors.ErrUnsupported
}
