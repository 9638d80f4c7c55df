package app

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/slimtoolkit/imagenorm/pkg/app"
	"github.com/slimtoolkit/imagenorm/pkg/app/master/command"
	"github.com/slimtoolkit/imagenorm/pkg/app/master/command/normalize"
	"github.com/slimtoolkit/imagenorm/pkg/app/master/command/verify"
	cmdversion "github.com/slimtoolkit/imagenorm/pkg/app/master/command/version"
	"github.com/slimtoolkit/imagenorm/pkg/app/master/version"
	"github.com/slimtoolkit/imagenorm/pkg/consts"
	v "github.com/slimtoolkit/imagenorm/pkg/version"
)

// Main/driver app CLI constants
const (
	AppName  = consts.AppName
	AppUsage = "normalize docker-save image archives into a reproducible, content addressed form"
)

func registerCommands() {
	normalize.RegisterCommand()
	verify.RegisterCommand()
	cmdversion.RegisterCommand()
}

func init() {
	registerCommands()
}

func newCLI() *cli.App {
	cliApp := cli.NewApp()
	cliApp.Version = v.Current()
	cliApp.Name = AppName
	cliApp.Usage = AppUsage
	cliApp.CommandNotFound = func(ctx *cli.Context, command string) {
		fmt.Printf("unknown command - %v \n\n", command)
		cli.ShowAppHelp(ctx)
	}

	cliApp.Flags = command.GlobalFlags()

	cliApp.Before = func(ctx *cli.Context) error {
		gparams := command.GlobalFlagValues(ctx)
		if gparams.NoColor {
			app.NoColor()
		}

		if err := configureLogger(gparams); err != nil {
			return err
		}

		ctx.Context = command.CLIContextSave(ctx.Context, command.GlobalParams, gparams)
		log.Debugf("imagenorm: version=%s params=%+v", v.Current(), gparams)
		return nil
	}

	cliApp.After = func(ctx *cli.Context) error {
		if f, ok := log.StandardLogger().Out.(*os.File); ok && f != os.Stderr {
			f.Close()
		}

		return nil
	}

	cliApp.Action = func(ctx *cli.Context) error {
		if ctx.Args().Len() == 0 {
			version.Print(app.NewExecutionContext(AppName, false, command.OutputFormatText), AppName)
		}

		return cli.ShowAppHelp(ctx)
	}

	cliApp.Commands = command.GetCommands()
	return cliApp
}

func configureLogger(gparams *command.GenericParams) error {
	if gparams.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		if gparams.Verbose {
			log.SetLevel(log.InfoLevel)
		} else {
			logLevel := log.WarnLevel
			switch gparams.LogLevel {
			case "trace":
				logLevel = log.TraceLevel
			case "debug":
				logLevel = log.DebugLevel
			case "info":
				logLevel = log.InfoLevel
			case "warn":
				logLevel = log.WarnLevel
			case "error":
				logLevel = log.ErrorLevel
			case "fatal":
				logLevel = log.FatalLevel
			case "panic":
				logLevel = log.PanicLevel
			default:
				return fmt.Errorf("unknown log-level %q", gparams.LogLevel)
			}

			log.SetLevel(logLevel)
		}
	}

	if path := gparams.Log; path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}

		log.SetOutput(f)
	}

	switch gparams.LogFormat {
	case "text":
		log.SetFormatter(&log.TextFormatter{DisableColors: true})
	case "json":
		log.SetFormatter(new(log.JSONFormatter))
	default:
		return fmt.Errorf("unknown log-format %q", gparams.LogFormat)
	}

	return nil
}
