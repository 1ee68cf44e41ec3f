// Package hotreload maps operator signals to reload notifications so the
// long-running processes can pick up configuration changes between
// cycles without a restart.
package hotreload

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// SourcesSignal asks the ingestor to re-read the sources file.
// RecipientsSignal asks the notifier to re-read the recipients file.
const (
	SourcesSignal    = syscall.SIGUSR1
	RecipientsSignal = syscall.SIGUSR2
)

// Watch returns a channel that receives a token whenever sig arrives.
// Deliveries are coalesced: repeated signals while a reload is pending
// collapse into one notification.
func Watch(sig os.Signal, logger *slog.Logger) <-chan struct{} {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sig)

	notifyCh := make(chan struct{}, 1)
	go func() {
		for range sigCh {
			logger.Info("reload signal received", "signal", sig.String())
			select {
			case notifyCh <- struct{}{}:
			default:
			}
		}
	}()

	return notifyCh
}
