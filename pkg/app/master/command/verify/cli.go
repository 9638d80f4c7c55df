package verify

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/slimtoolkit/imagenorm/pkg/app"
	"github.com/slimtoolkit/imagenorm/pkg/app/master/command"
)

const (
	Name  = "verify"
	Usage = "Check that a docker-save archive is normalized and its content addresses match"
	Alias = "c"
)

var CLI = &cli.Command{
	Name:      Name,
	Aliases:   []string{Alias},
	Usage:     Usage,
	ArgsUsage: "[archive]",
	Flags: []cli.Flag{
		cflag(FlagTarPath),
	},
	Action: func(ctx *cli.Context) error {
		gfvalues := command.GlobalFlagValues(ctx)
		xc := app.NewExecutionContext(
			Name,
			gfvalues.QuietCLIMode,
			gfvalues.OutputFormat)

		cfvalues, err := CommandFlagValues(xc, ctx)
		if err != nil {
			log.WithError(err).WithField("cmd", Name).Error("bad command parameters")
			xc.Exit(command.ECTVerify | command.ECCBadParams)
			return nil
		}

		if exitCode := OnCommand(xc, gfvalues, cfvalues); exitCode != 0 {
			xc.Exit(exitCode)
		}

		return nil
	},
}

type CommandParams struct {
	TarPath string `json:"tar_path"`
}

func CommandFlagValues(xc *app.ExecutionContext, ctx *cli.Context) (*CommandParams, error) {
	values := &CommandParams{
		TarPath: ctx.String(FlagTarPath),
	}

	if values.TarPath == "" && ctx.Args().Len() > 0 {
		values.TarPath = ctx.Args().First()
	}

	if values.TarPath == "" {
		xc.Out.Error("param.tar_path", "missing archive")
		cli.ShowCommandHelp(ctx, Name)
		return nil, fmt.Errorf("missing archive")
	}

	return values, nil
}
