//go:build !windows

package util

import (
	"os"
	"syscall"
)

// ShutdownSignals are the signals that stop the service cleanly.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

// GracefulSignal asks a child capture process to exit.
func GracefulSignal(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
