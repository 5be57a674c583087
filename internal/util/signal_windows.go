//go:build windows

package util

import "os"

// ShutdownSignals are the signals that stop the service cleanly.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal ends a child capture process. Windows cannot deliver a
// console interrupt to it, so the process is killed.
func GracefulSignal(p *os.Process) error {
	return p.Kill()
}
