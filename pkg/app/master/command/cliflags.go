package command

import (
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/slimtoolkit/imagenorm/pkg/app"
	"github.com/slimtoolkit/imagenorm/pkg/consts"
)

/////////////////////////////////////////////////////////
//Flags
/////////////////////////////////////////////////////////

// Global flag names
const (
	FlagCommandReport = "report"
	FlagDebug         = "debug"
	FlagVerbose       = "verbose"
	FlagQuietCLIMode  = "quiet"
	FlagLogLevel      = "log-level"
	FlagLog           = "log"
	FlagLogFormat     = "log-format"
	FlagNoColor       = "no-color"
	FlagOutputFormat  = "output-format"
	FlagTempDir       = "temp-dir"
)

const (
	OutputFormatJSON = app.OutputFormatJSON
	OutputFormatText = app.OutputFormatText
)

// Global flag usage info
const (
	FlagCommandReportUsage = "command report location (enabled by default; set it to \"off\" to disable it)"
	FlagDebugUsage         = "enable debug logs"
	FlagVerboseUsage       = "enable info logs"
	FlagQuietCLIModeUsage  = "Quiet CLI execution mode"
	FlagLogLevelUsage      = "set the logging level ('trace', 'debug', 'info', 'warn' (default), 'error', 'fatal', 'panic')"
	FlagLogUsage           = "log file to store logs"
	FlagLogFormatUsage     = "set the format used by logs ('text' (default), or 'json')"
	FlagOutputFormatUsage  = "set the output format to use ('text' (default), or 'json')"
	FlagNoColorUsage       = "disable color output"
	FlagTempDirUsage       = "base directory for the temporary workspace (system temp directory by default)"
)

func envVar(name string) []string {
	return []string{consts.EnvVarPrefix + name}
}

func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    FlagCommandReport,
			Value:   consts.DefaultReportFileName,
			Usage:   FlagCommandReportUsage,
			EnvVars: envVar("REPORT"),
		},
		&cli.BoolFlag{
			Name:    FlagDebug,
			Usage:   FlagDebugUsage,
			EnvVars: envVar("DEBUG"),
		},
		&cli.BoolFlag{
			Name:    FlagVerbose,
			Usage:   FlagVerboseUsage,
			EnvVars: envVar("VERBOSE"),
		},
		&cli.BoolFlag{
			Name:    FlagQuietCLIMode,
			Usage:   FlagQuietCLIModeUsage,
			EnvVars: envVar("QUIET"),
		},
		&cli.StringFlag{
			Name:    FlagLogLevel,
			Value:   "warn",
			Usage:   FlagLogLevelUsage,
			EnvVars: envVar("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    FlagLog,
			Usage:   FlagLogUsage,
			EnvVars: envVar("LOG"),
		},
		&cli.StringFlag{
			Name:    FlagLogFormat,
			Value:   "text",
			Usage:   FlagLogFormatUsage,
			EnvVars: envVar("LOG_FORMAT"),
		},
		&cli.StringFlag{
			Name:    FlagOutputFormat,
			Value:   OutputFormatText,
			Usage:   FlagOutputFormatUsage,
			EnvVars: envVar("OUTPUT_FORMAT"),
		},
		&cli.BoolFlag{
			Name:    FlagNoColor,
			Usage:   FlagNoColorUsage,
			EnvVars: envVar("NO_COLOR"),
		},
		&cli.StringFlag{
			Name:    FlagTempDir,
			Usage:   FlagTempDirUsage,
			EnvVars: envVar("TEMP_DIR"),
		},
	}
}

// Shared command flag names
const (
	FlagCompressor = "compressor"
	FlagBufferSize = "buffer-size"
)

// Shared command flag usage info
const (
	FlagCompressorUsage = "layer compressor: 'gzip' (external 'gzip -nf', default) or 'pgzip' (in-process)"
	FlagBufferSizeUsage = "chunk size (in bytes) used to stream layer data through the compressor"
)

var CommonFlags = map[string]cli.Flag{
	FlagCompressor: &cli.StringFlag{
		Name:    FlagCompressor,
		Value:   "gzip",
		Usage:   FlagCompressorUsage,
		EnvVars: envVar("COMPRESSOR"),
	},
	FlagBufferSize: &cli.IntFlag{
		Name:    FlagBufferSize,
		Value:   4096,
		Usage:   FlagBufferSizeUsage,
		EnvVars: envVar("BUFFER_SIZE"),
	},
}

func Cflag(name string) cli.Flag {
	cf, ok := CommonFlags[name]
	if !ok {
		log.Fatalf("unknown flag='%s'", name)
	}

	return cf
}
