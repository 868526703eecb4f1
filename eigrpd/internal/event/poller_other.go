//go:build !linux

package event

import (
	"errors"
	"runtime"
)

func newPoller() (poller, error) {
	return nil, errors.New("event: no poller for " + runtime.GOOS)
}
