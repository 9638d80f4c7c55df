package verify

import (
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/slimtoolkit/imagenorm/pkg/consts"
)

// Verify command flag names
const (
	FlagTarPath = "tar-path"
)

// Verify command flag usage info
const (
	FlagTarPathUsage = "docker-save archive to verify"
)

var Flags = map[string]cli.Flag{
	FlagTarPath: &cli.StringFlag{
		Name:    FlagTarPath,
		Aliases: []string{"tar_path"},
		Usage:   FlagTarPathUsage,
		EnvVars: []string{consts.EnvVarPrefix + "TAR_PATH"},
	},
}

func cflag(name string) cli.Flag {
	cf, ok := Flags[name]
	if !ok {
		log.Fatalf("unknown flag='%s'", name)
	}

	return cf
}
