package version

import (
	"github.com/slimtoolkit/imagenorm/pkg/app/master/command"
)

func RegisterCommand() {
	command.AddCLICommand(Name, CLI)
}
