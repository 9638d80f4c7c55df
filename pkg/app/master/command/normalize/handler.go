package normalize

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/imagenorm/pkg/app"
	"github.com/slimtoolkit/imagenorm/pkg/app/master/command"
	cmd "github.com/slimtoolkit/imagenorm/pkg/command"
	errs "github.com/slimtoolkit/imagenorm/pkg/errors"
	"github.com/slimtoolkit/imagenorm/pkg/imagecheck"
	"github.com/slimtoolkit/imagenorm/pkg/normalizer"
	"github.com/slimtoolkit/imagenorm/pkg/report"
	"github.com/slimtoolkit/imagenorm/pkg/util/errutil"
	"github.com/slimtoolkit/imagenorm/pkg/version"
)

const appName = command.AppName

type ovars = app.OutVars

// OnCommand implements the 'normalize' command.
// It returns the command exit code.
func OnCommand(
	ctx context.Context,
	xc *app.ExecutionContext,
	gparams *command.GenericParams,
	cparams *CommandParams,
	opts normalizer.Options) int {
	const cmdName = Name
	logger := log.WithFields(log.Fields{"app": appName, "cmd": cmdName})

	cmdReport := report.NewNormalizeCommand(gparams.ReportLocation)
	cmdReport.State = cmd.StateStarted
	cmdReport.SourceArchive = report.NewArchiveMetadata(cparams.InTarPath)
	if opts.Compressor != nil {
		cmdReport.Compressor = opts.Compressor.Name()
	}

	xc.Out.State(cmd.StateStarted)
	xc.Out.Info("params",
		ovars{
			"in":         cparams.InTarPath,
			"out":        cparams.OutTarPath,
			"compressor": cmdReport.Compressor,
			"verify":     cparams.Verify,
		})

	logger.Debugf("version=%s params=%+v", version.Current(), cparams)

	fail := func(err error) int {
		kind, _ := errs.KindOf(err)
		exitCode := command.ExitCode(command.ECTNormalize, err)

		logger.WithError(err).WithFields(log.Fields{
			"kind":      kind,
			"exit.code": exitCode,
		}).Error("normalization failed")

		cmdReport.SetError(err, string(kind))
		saveReport(xc, cmdReport)

		xc.Out.Error("normalize", err.Error())
		xc.Out.State(cmd.StateExited,
			ovars{
				"exit.code": exitCode,
				"kind":      kind,
			})

		return exitCode
	}

	n := normalizer.New(opts)
	result, err := n.Normalize(ctx, cparams.InTarPath, cparams.OutTarPath)
	if err != nil {
		return fail(err)
	}

	cmdReport.SetResult(result)
	for idx, image := range result.Images {
		xc.Out.Info("image",
			ovars{
				"index":         idx,
				"tags":          image.RepoTags,
				"source.config": image.SourceConfig,
				"config":        image.Config,
				"layers":        len(image.Layers),
			})

		for lidx, layer := range image.Layers {
			xc.Out.Info("image.layer",
				ovars{
					"image":   idx,
					"index":   lidx,
					"source":  layer.Source,
					"name":    layer.Name,
					"diff.id": layer.DiffID,
				})
		}
	}

	xc.Out.Info("output",
		ovars{
			"archive": result.ArchivePath,
			"size":    cmdReport.OutputArchive.SizeHuman,
			"digest":  result.ArchiveDigest,
			"entries": len(result.Entries),
		})

	if cparams.Verify {
		verification, err := imagecheck.Verify(cparams.OutTarPath)
		cmdReport.Verification = verification
		if err != nil {
			return fail(err)
		}

		xc.Out.Info("verification",
			ovars{
				"images": len(verification.Images),
				"status": "ok",
			})
	}

	cmdReport.State = cmd.StateCompleted
	xc.Out.State(cmd.StateCompleted)

	cmdReport.State = cmd.StateDone
	saveReport(xc, cmdReport)
	xc.Out.State(cmd.StateDone)
	return 0
}

func saveReport(xc *app.ExecutionContext, cmdReport *report.NormalizeCommand) {
	saved, err := cmdReport.Save()
	if err != nil {
		errutil.WarnOn(err)
		return
	}

	if saved {
		xc.Out.Info("report",
			ovars{
				"file": cmdReport.ReportLocation(),
			})
	}
}
