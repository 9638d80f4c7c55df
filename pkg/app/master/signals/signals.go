package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

var signals = []os.Signal{
	os.Interrupt,
	syscall.SIGTERM,
}

// InitHandlers returns a context that is canceled on the first interrupt or terminate signal.
// A second signal terminates the app right away.
func InitHandlers(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, signals...)
	log.Debugf("imagenorm: listening for signals - %+v", signals)

	go func() {
		defer signal.Stop(sigChan)

		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			log.Debugf("imagenorm: signal (%v) - stopping", sig)
			cancel()
		}

		select {
		case sig := <-sigChan:
			log.Warnf("imagenorm: signal (%v) - exiting", sig)
			os.Exit(130)
		case <-parent.Done():
		}
	}()

	return ctx, cancel
}
