package version

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/slimtoolkit/imagenorm/pkg/app"
	"github.com/slimtoolkit/imagenorm/pkg/digeststream"
	v "github.com/slimtoolkit/imagenorm/pkg/version"
)

type ovars = app.OutVars

// Print shows the master app version information
func Print(xc *app.ExecutionContext, cmdNameParam string) {
	xc.Out.Info("app", ovars{
		"cmd":      cmdNameParam,
		"version":  v.Current(),
		"tag":      v.Tag(),
		"revision": v.Revision(),
		"built":    v.BuildTime(),
		"location": exeDir(),
	})

	xc.Out.Info("host", ovars{
		"cmd":     cmdNameParam,
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
		"runtime": runtime.Version(),
		"cpus":    runtime.NumCPU(),
	})

	for _, name := range []string{digeststream.GzipName, digeststream.PgzipName} {
		c, err := digeststream.New(name)
		if err != nil {
			continue
		}

		xc.Out.Info("compressor", ovars{
			"cmd":       cmdNameParam,
			"name":      name,
			"command":   c.Name(),
			"available": digeststream.Available(c),
		})
	}
}

func exeDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}

	return filepath.Dir(exe)
}
