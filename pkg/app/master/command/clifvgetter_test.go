package command

import (
	"context"
	"flag"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/slimtoolkit/imagenorm/pkg/digeststream"
	errs "github.com/slimtoolkit/imagenorm/pkg/errors"
)

func newTestContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()

	flagSet := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range GlobalFlags() {
		require.NoError(t, f.Apply(flagSet))
	}

	require.NoError(t, Cflag(FlagCompressor).Apply(flagSet))
	require.NoError(t, Cflag(FlagBufferSize).Apply(flagSet))
	require.NoError(t, flagSet.Parse(args))

	return cli.NewContext(&cli.App{}, flagSet, nil)
}

func TestGlobalFlagValuesDefaults(t *testing.T) {
	values := GlobalFlagValues(newTestContext(t))

	assert.Equal(t, "imagenorm.report.json", values.ReportLocation)
	assert.Equal(t, "warn", values.LogLevel)
	assert.Equal(t, "text", values.LogFormat)
	assert.Equal(t, OutputFormatText, values.OutputFormat)
	assert.False(t, values.Debug)
	assert.False(t, values.QuietCLIMode)
	assert.Empty(t, values.TempDir)
}

func TestGlobalFlagValues(t *testing.T) {
	tt := []struct {
		name     string
		args     []string
		expected func(*GenericParams)
	}{
		{
			name: "report off",
			args: []string{"--report", "off"},
			expected: func(p *GenericParams) {
				assert.Empty(t, p.ReportLocation)
			},
		},
		{
			name: "json output",
			args: []string{"--output-format", "json", "--quiet"},
			expected: func(p *GenericParams) {
				assert.Equal(t, OutputFormatJSON, p.OutputFormat)
				assert.True(t, p.QuietCLIMode)
			},
		},
		{
			name: "unknown output format",
			args: []string{"--output-format", "yaml"},
			expected: func(p *GenericParams) {
				assert.Equal(t, OutputFormatText, p.OutputFormat)
			},
		},
		{
			name: "logging",
			args: []string{"--debug", "--log-level", "trace", "--log-format", "json", "--log", "out.log"},
			expected: func(p *GenericParams) {
				assert.True(t, p.Debug)
				assert.Equal(t, "trace", p.LogLevel)
				assert.Equal(t, "json", p.LogFormat)
				assert.Equal(t, "out.log", p.Log)
			},
		},
	}

	for _, test := range tt {
		t.Run(test.name, func(t *testing.T) {
			test.expected(GlobalFlagValues(newTestContext(t, test.args...)))
		})
	}
}

func TestGlobalFlagValuesFromEnv(t *testing.T) {
	t.Setenv("IMAGENORM_TEMP_DIR", "/scratch")
	t.Setenv("IMAGENORM_REPORT", "off")

	values := GlobalFlagValues(newTestContext(t))
	assert.Equal(t, "/scratch", values.TempDir)
	assert.Empty(t, values.ReportLocation)
}

func TestGetNormalizerOptions(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "scratch")
	ctx := newTestContext(t, "--temp-dir", tempDir, "--compressor", "pgzip", "--buffer-size", "512")

	opts, err := GetNormalizerOptions(ctx, GlobalFlagValues(ctx))
	require.NoError(t, err)
	assert.Equal(t, tempDir, opts.TempDir)
	assert.Equal(t, 512, opts.BufferSize)
	assert.IsType(t, &digeststream.PgzipCompressor{}, opts.Compressor)
	assert.DirExists(t, tempDir)
}

func TestGetNormalizerOptionsDefaults(t *testing.T) {
	ctx := newTestContext(t)

	opts, err := GetNormalizerOptions(ctx, GlobalFlagValues(ctx))
	require.NoError(t, err)
	assert.Empty(t, opts.TempDir)
	assert.Equal(t, digeststream.DefaultBufferSize, opts.BufferSize)
	assert.IsType(t, &digeststream.ExecCompressor{}, opts.Compressor)
}

func TestGetNormalizerOptionsErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--compressor", "zstd"},
		{"--buffer-size", "0"},
	} {
		ctx := newTestContext(t, args...)
		_, err := GetNormalizerOptions(ctx, GlobalFlagValues(ctx))
		assert.Error(t, err, "%v", args)
	}
}

func TestExitCode(t *testing.T) {
	tt := []struct {
		err      error
		expected int
	}{
		{err: nil, expected: 0},
		{err: errors.New("other"), expected: ECTNormalize | ECCOther},
		{err: errs.E(errs.KindArchiveFormat, "op", "", nil), expected: ECTNormalize | ECCArchiveFormat},
		{err: errors.Wrap(errs.E(errs.KindCompression, "op", "", nil), "layer"), expected: ECTNormalize | ECCCompression},
		{err: errs.E(errs.KindStreamIO, "op", "", nil), expected: ECTNormalize | ECCStreamIO},
		{err: errs.E(errs.KindConfigIntegrity, "op", "", nil), expected: ECTNormalize | ECCConfigIntegrity},
		{err: errs.E(errs.KindFilesystem, "op", "", nil), expected: ECTNormalize | ECCFilesystem},
		{err: errors.Wrap(context.Canceled, "normalization interrupted"), expected: ECTNormalize | ECCInterrupted},
	}

	for _, test := range tt {
		assert.Equal(t, test.expected, ExitCode(ECTNormalize, test.err), "%v", test.err)
	}
}
