package command

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/slimtoolkit/imagenorm/pkg/app"
	errs "github.com/slimtoolkit/imagenorm/pkg/errors"
)

var (
	ErrNoGlobalParams = errors.New("No global params")
)

type ovars = app.OutVars

/////////////////////////////////////////////////////////

type CLIContextKey int

const (
	GlobalParams CLIContextKey = 1
)

func CLIContextSave(ctx context.Context, key CLIContextKey, data interface{}) context.Context {
	return context.WithValue(ctx, key, data)
}

func CLIContextGet(ctx context.Context, key CLIContextKey) interface{} {
	if ctx == nil {
		return nil
	}

	return ctx.Value(key)
}

/////////////////////////////////////////////////////////

type GenericParams struct {
	NoColor        bool
	Debug          bool
	Verbose        bool
	QuietCLIMode   bool
	LogLevel       string
	LogFormat      string
	OutputFormat   string
	Log            string
	ReportLocation string
	TempDir        string
}

// Exit Code Types
const (
	ECTCommon    = 0x01000000
	ECTNormalize = 0x02000000
	ECTVerify    = 0x03000000
	ectVersion   = 0x04000000
)

// Command exit codes
const (
	ECCOther = iota + 1
	ECCBadParams
	ECCArchiveFormat
	ECCCompression
	ECCStreamIO
	ECCConfigIntegrity
	ECCFilesystem
	ECCInterrupted
)

const (
	AppName = "imagenorm"
)

// ExitCode maps a command failure to its exit code within the command exit code type
func ExitCode(codeType int, err error) int {
	if err == nil {
		return 0
	}

	code := ECCOther
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = ECCInterrupted
	case errors.Is(err, errs.ErrArchiveFormat):
		code = ECCArchiveFormat
	case errors.Is(err, errs.ErrCompression):
		code = ECCCompression
	case errors.Is(err, errs.ErrStreamIO):
		code = ECCStreamIO
	case errors.Is(err, errs.ErrConfigIntegrity):
		code = ECCConfigIntegrity
	case errors.Is(err, errs.ErrFilesystem):
		code = ECCFilesystem
	}

	return codeType | code
}

///////////////////////////////////////

var cliCommands []*cli.Command

func AddCLICommand(name string, cmd *cli.Command) {
	if cmd == nil || name == "" {
		return
	}

	cliCommands = append(cliCommands, cmd)
}

func GetCommands() []*cli.Command {
	return cliCommands
}
