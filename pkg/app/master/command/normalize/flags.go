package normalize

import (
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/slimtoolkit/imagenorm/pkg/consts"
)

// Normalize command flag names
const (
	FlagInTarPath  = "in-tar-path"
	FlagOutTarPath = "out-tar-path"
	FlagVerify     = "verify"
)

// Normalize command flag usage info
const (
	FlagInTarPathUsage  = "docker-save archive to normalize"
	FlagOutTarPathUsage = "location of the normalized archive (replaced only if the normalization succeeds)"
	FlagVerifyUsage     = "verify the normalized archive"
)

var Flags = map[string]cli.Flag{
	FlagInTarPath: &cli.StringFlag{
		Name:    FlagInTarPath,
		Aliases: []string{"in_tar_path"},
		Usage:   FlagInTarPathUsage,
		EnvVars: []string{consts.EnvVarPrefix + "IN_TAR_PATH"},
	},
	FlagOutTarPath: &cli.StringFlag{
		Name:    FlagOutTarPath,
		Aliases: []string{"out_tar_path"},
		Usage:   FlagOutTarPathUsage,
		EnvVars: []string{consts.EnvVarPrefix + "OUT_TAR_PATH"},
	},
	FlagVerify: &cli.BoolFlag{
		Name:    FlagVerify,
		Value:   false,
		Usage:   FlagVerifyUsage,
		EnvVars: []string{consts.EnvVarPrefix + "VERIFY"},
	},
}

func cflag(name string) cli.Flag {
	cf, ok := Flags[name]
	if !ok {
		log.Fatalf("unknown flag='%s'", name)
	}

	return cf
}
