package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slimtoolkit/imagenorm/pkg/app"
	"github.com/slimtoolkit/imagenorm/pkg/app/master/command"
	"github.com/slimtoolkit/imagenorm/pkg/digeststream"
	"github.com/slimtoolkit/imagenorm/pkg/normalizer"
	"github.com/slimtoolkit/imagenorm/pkg/testutil"
)

var fixtureTime = time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

type testEnv struct {
	inPath     string
	outPath    string
	reportPath string
	gparams    *command.GenericParams
	opts       normalizer.Options
}

func newTestEnv(t *testing.T) *testEnv {
	dir := t.TempDir()
	env := &testEnv{
		inPath:     filepath.Join(dir, "in.tar"),
		outPath:    filepath.Join(dir, "out.tar"),
		reportPath: filepath.Join(dir, "report.json"),
		opts: normalizer.Options{
			TempDir:    t.TempDir(),
			Compressor: digeststream.NewPgzipCompressor(),
		},
	}

	env.gparams = &command.GenericParams{
		ReportLocation: env.reportPath,
		OutputFormat:   command.OutputFormatText,
	}

	require.NoError(t, testutil.WriteImageArchive(env.inPath, fixtureTime, "app:1.0", false))
	return env
}

func readReport(t *testing.T, path string) map[string]interface{} {
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &data))
	return data
}

func TestOnCommand(t *testing.T) {
	env := newTestEnv(t)
	xc := app.NewExecutionContext(Name, true, command.OutputFormatText)

	exitCode := OnCommand(context.Background(), xc, env.gparams,
		&CommandParams{InTarPath: env.inPath, OutTarPath: env.outPath, Verify: true}, env.opts)
	require.Equal(t, 0, exitCode)
	assert.FileExists(t, env.outPath)

	data := readReport(t, env.reportPath)
	assert.Equal(t, "normalize", data["type"])
	assert.Equal(t, "done", data["state"])
	assert.Equal(t, digeststream.PgzipName, data["compressor"])

	images := data["images"].([]interface{})
	require.Len(t, images, 1)
	assert.Len(t, images[0].(map[string]interface{})["layers"], 2)

	verification := data["verification"].(map[string]interface{})
	assert.Nil(t, verification["problems"])

	output := data["output_archive"].(map[string]interface{})
	assert.Equal(t, env.outPath, output["path"])
	assert.NotEmpty(t, output["digest"])
}

func TestOnCommandFailure(t *testing.T) {
	env := newTestEnv(t)
	xc := app.NewExecutionContext(Name, true, command.OutputFormatText)
	missing := filepath.Join(t.TempDir(), "missing.tar")

	exitCode := OnCommand(context.Background(), xc, env.gparams,
		&CommandParams{InTarPath: missing, OutTarPath: env.outPath}, env.opts)
	assert.NotEqual(t, 0, exitCode)
	assert.Equal(t, command.ECTNormalize, exitCode&0xFF000000)
	assert.NoFileExists(t, env.outPath)

	data := readReport(t, env.reportPath)
	assert.Equal(t, "error", data["state"])
	assert.NotEmpty(t, data["error"])
}

func TestOnCommandCanceled(t *testing.T) {
	env := newTestEnv(t)
	xc := app.NewExecutionContext(Name, true, command.OutputFormatText)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exitCode := OnCommand(ctx, xc, env.gparams,
		&CommandParams{InTarPath: env.inPath, OutTarPath: env.outPath}, env.opts)
	assert.Equal(t, command.ECTNormalize|command.ECCInterrupted, exitCode)
	assert.NoFileExists(t, env.outPath)
}

func TestOnCommandNoReport(t *testing.T) {
	env := newTestEnv(t)
	env.gparams.ReportLocation = ""
	xc := app.NewExecutionContext(Name, true, command.OutputFormatText)

	exitCode := OnCommand(context.Background(), xc, env.gparams,
		&CommandParams{InTarPath: env.inPath, OutTarPath: env.outPath}, env.opts)
	require.Equal(t, 0, exitCode)
	assert.NoFileExists(t, env.reportPath)
}

func captureLog(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	logger := log.StandardLogger()
	out, formatter, level := logger.Out, logger.Formatter, logger.GetLevel()
	log.SetOutput(&buf)
	log.SetFormatter(&log.TextFormatter{DisableColors: true, DisableTimestamp: true})
	log.SetLevel(log.WarnLevel)

	t.Cleanup(func() {
		log.SetOutput(out)
		log.SetFormatter(formatter)
		log.SetLevel(level)
	})

	return &buf
}

func TestOnCommandFailureIsLoggedInQuietMode(t *testing.T) {
	env := newTestEnv(t)
	env.gparams.ReportLocation = ""
	logs := captureLog(t)

	var out bytes.Buffer
	xc := app.NewExecutionContext(Name, true, command.OutputFormatText)
	xc.Out = app.NewOutput(Name, true, command.OutputFormatText, &out)

	exitCode := OnCommand(context.Background(), xc, env.gparams,
		&CommandParams{InTarPath: filepath.Join(t.TempDir(), "missing.tar"), OutTarPath: env.outPath}, env.opts)
	require.NotEqual(t, 0, exitCode)

	assert.Empty(t, out.String())
	assert.Contains(t, logs.String(), "level=error")
	assert.Contains(t, logs.String(), "normalization failed")
	assert.Contains(t, logs.String(), "missing.tar")
	assert.Contains(t, logs.String(), "kind=")
}

func TestOnCommandSuccessIsNotLogged(t *testing.T) {
	env := newTestEnv(t)
	logs := captureLog(t)
	xc := app.NewExecutionContext(Name, true, command.OutputFormatText)

	exitCode := OnCommand(context.Background(), xc, env.gparams,
		&CommandParams{InTarPath: env.inPath, OutTarPath: env.outPath}, env.opts)
	require.Equal(t, 0, exitCode)
	assert.Empty(t, logs.String())
}
