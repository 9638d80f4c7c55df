package app

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/imagenorm/pkg/app/master/signals"
)

// Run starts the master app
func Run() {
	ctx, cancel := signals.InitHandlers(context.Background())
	defer cancel()

	cli := newCLI()
	if err := cli.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
