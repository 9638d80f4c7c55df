package verify

import (
	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/imagenorm/pkg/app"
	"github.com/slimtoolkit/imagenorm/pkg/app/master/command"
	cmd "github.com/slimtoolkit/imagenorm/pkg/command"
	errs "github.com/slimtoolkit/imagenorm/pkg/errors"
	"github.com/slimtoolkit/imagenorm/pkg/imagecheck"
	"github.com/slimtoolkit/imagenorm/pkg/report"
	"github.com/slimtoolkit/imagenorm/pkg/util/errutil"
)

type ovars = app.OutVars

// OnCommand implements the 'verify' command.
// It returns the command exit code.
func OnCommand(
	xc *app.ExecutionContext,
	gparams *command.GenericParams,
	cparams *CommandParams) int {
	const cmdName = Name
	logger := log.WithFields(log.Fields{"app": command.AppName, "cmd": cmdName})

	cmdReport := report.NewVerifyCommand(gparams.ReportLocation)
	cmdReport.State = cmd.StateStarted
	cmdReport.Archive = report.NewArchiveMetadata(cparams.TarPath)

	xc.Out.State(cmd.StateStarted)
	xc.Out.Info("params", ovars{"archive": cparams.TarPath})

	verification, err := imagecheck.Verify(cparams.TarPath)
	cmdReport.Verification = verification
	if verification != nil {
		for _, image := range verification.Images {
			xc.Out.Info("image",
				ovars{
					"tag":      image.RepoTag,
					"config":   image.Config,
					"layers":   len(image.Layers),
					"verified": image.Verified,
					"skipped":  image.Skipped,
				})
		}

		for _, problem := range verification.Problems {
			xc.Out.Info("problem", ovars{"message": problem})
		}
	}

	exitCode := 0
	if err != nil {
		kind, _ := errs.KindOf(err)
		exitCode = command.ExitCode(command.ECTVerify, err)
		logger.WithError(err).WithFields(log.Fields{
			"kind":      kind,
			"exit.code": exitCode,
		}).Error("verification failed")

		cmdReport.SetError(err, string(kind))
		xc.Out.State(cmd.StateExited,
			ovars{
				"exit.code": exitCode,
				"kind":      kind,
			})
	} else {
		cmdReport.State = cmd.StateDone
		xc.Out.State(cmd.StateDone)
	}

	saved, err := cmdReport.Save()
	errutil.WarnOn(err)
	if saved {
		xc.Out.Info("report", ovars{"file": cmdReport.ReportLocation()})
	}

	return exitCode
}
