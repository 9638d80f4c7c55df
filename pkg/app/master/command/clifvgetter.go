package command

//Flag value getters

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/slimtoolkit/imagenorm/pkg/digeststream"
	"github.com/slimtoolkit/imagenorm/pkg/normalizer"
	"github.com/slimtoolkit/imagenorm/pkg/util/fsutil"
)

func GlobalFlagValues(ctx *cli.Context) *GenericParams {
	values := GenericParams{
		NoColor:        ctx.Bool(FlagNoColor),
		Debug:          ctx.Bool(FlagDebug),
		Verbose:        ctx.Bool(FlagVerbose),
		QuietCLIMode:   ctx.Bool(FlagQuietCLIMode),
		LogLevel:       ctx.String(FlagLogLevel),
		LogFormat:      ctx.String(FlagLogFormat),
		OutputFormat:   ctx.String(FlagOutputFormat),
		Log:            ctx.String(FlagLog),
		ReportLocation: ctx.String(FlagCommandReport),
		TempDir:        ctx.String(FlagTempDir),
	}

	if values.ReportLocation == "off" {
		values.ReportLocation = ""
	}

	if values.OutputFormat != OutputFormatJSON {
		values.OutputFormat = OutputFormatText
	}

	return &values
}

// GetCompressor returns the layer compressor selected with the compressor flag
func GetCompressor(ctx *cli.Context) (digeststream.Compressor, error) {
	return digeststream.New(ctx.String(FlagCompressor))
}

// GetNormalizerOptions maps the global and the shared command flags to the normalizer options
func GetNormalizerOptions(ctx *cli.Context, gparams *GenericParams) (normalizer.Options, error) {
	const op = "command.GetNormalizerOptions"
	var opts normalizer.Options

	compressor, err := GetCompressor(ctx)
	if err != nil {
		return opts, err
	}

	opts.Compressor = compressor
	opts.BufferSize = ctx.Int(FlagBufferSize)
	if opts.BufferSize <= 0 {
		return opts, fmt.Errorf("bad buffer size - %d", opts.BufferSize)
	}

	if gparams != nil && gparams.TempDir != "" {
		if !fsutil.DirExists(gparams.TempDir) {
			log.WithFields(log.Fields{
				"op":       op,
				"temp.dir": gparams.TempDir,
			}).Debug("creating temp dir")

			if err := os.MkdirAll(gparams.TempDir, 0755); err != nil {
				return opts, err
			}
		}

		opts.TempDir = gparams.TempDir
	}

	return opts, nil
}
