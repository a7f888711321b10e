//go:build windows

package global

import (
	"os"
	"syscall"
)

var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func notifyDump(chan<- os.Signal) {}

func isDumpSignal(os.Signal) bool {
	return false
}
