package version

import (
	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/imagenorm/pkg/app"
	"github.com/slimtoolkit/imagenorm/pkg/app/master/command"
	"github.com/slimtoolkit/imagenorm/pkg/app/master/version"
	cmd "github.com/slimtoolkit/imagenorm/pkg/command"
)

// OnCommand implements the 'version' command
func OnCommand(xc *app.ExecutionContext) {
	logger := log.WithFields(log.Fields{"app": command.AppName, "cmd": cmd.Version})
	logger.Trace("call")
	defer logger.Trace("exit")

	version.Print(xc, Name)
}
