package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slimtoolkit/imagenorm/pkg/app"
)

func TestPrint(t *testing.T) {
	app.NoColor()

	var buf bytes.Buffer
	xc := app.NewExecutionContext("version", false, app.OutputFormatJSON)
	xc.Out = app.NewOutput("version", false, app.OutputFormatJSON, &buf)

	Print(xc, "version")

	out := buf.String()
	assert.Contains(t, out, `"info":"app"`)
	assert.Contains(t, out, `"info":"host"`)
	assert.Contains(t, out, `"name":"pgzip"`)
	assert.Contains(t, out, `"available":true`)
}
