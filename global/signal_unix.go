//go:build !windows

package global

import (
	"os"
	"os/signal"
	"syscall"
)

var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// notifyDump kill -USR1 可以保存当前的 goroutine stack
func notifyDump(c chan<- os.Signal) {
	signal.Notify(c, syscall.SIGUSR1)
}

func isDumpSignal(s os.Signal) bool {
	return s == syscall.SIGUSR1
}
