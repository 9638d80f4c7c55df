package normalize

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/slimtoolkit/imagenorm/pkg/app"
	"github.com/slimtoolkit/imagenorm/pkg/app/master/command"
)

const (
	Name  = "normalize"
	Usage = "Rewrite a docker-save archive into its reproducible, content addressed form"
	Alias = "n"
)

var CLI = &cli.Command{
	Name:    Name,
	Aliases: []string{Alias},
	Usage:   Usage,
	Flags: []cli.Flag{
		cflag(FlagInTarPath),
		cflag(FlagOutTarPath),
		cflag(FlagVerify),
		command.Cflag(command.FlagCompressor),
		command.Cflag(command.FlagBufferSize),
	},
	Action: func(ctx *cli.Context) error {
		gfvalues := command.GlobalFlagValues(ctx)
		xc := app.NewExecutionContext(
			Name,
			gfvalues.QuietCLIMode,
			gfvalues.OutputFormat)

		cfvalues, err := CommandFlagValues(xc, ctx)
		if err != nil {
			//CommandFlagValues() outputs the error messages already
			log.WithError(err).WithField("cmd", Name).Error("bad command parameters")
			xc.Exit(command.ECTNormalize | command.ECCBadParams)
			return nil
		}

		opts, err := command.GetNormalizerOptions(ctx, gfvalues)
		if err != nil {
			log.WithError(err).WithField("cmd", Name).Error("bad command parameters")
			xc.Out.Error("param.options", err.Error())
			xc.Exit(command.ECTNormalize | command.ECCBadParams)
			return nil
		}

		if exitCode := OnCommand(ctx.Context, xc, gfvalues, cfvalues, opts); exitCode != 0 {
			xc.Exit(exitCode)
		}

		return nil
	},
}

type CommandParams struct {
	InTarPath  string `json:"in_tar_path"`
	OutTarPath string `json:"out_tar_path"`
	Verify     bool   `json:"verify"`
}

func CommandFlagValues(xc *app.ExecutionContext, ctx *cli.Context) (*CommandParams, error) {
	values := &CommandParams{
		InTarPath:  ctx.String(FlagInTarPath),
		OutTarPath: ctx.String(FlagOutTarPath),
		Verify:     ctx.Bool(FlagVerify),
	}

	if values.InTarPath == "" {
		xc.Out.Error("param.in_tar_path", "missing input archive")
		cli.ShowCommandHelp(ctx, Name)
		return nil, fmt.Errorf("missing input archive")
	}

	if values.OutTarPath == "" {
		xc.Out.Error("param.out_tar_path", "missing output archive")
		cli.ShowCommandHelp(ctx, Name)
		return nil, fmt.Errorf("missing output archive")
	}

	return values, nil
}
