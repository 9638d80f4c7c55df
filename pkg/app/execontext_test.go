package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	NoColor()
}

func TestOutputText(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput("normalize", false, OutputFormatText, &buf)

	out.State("started")
	out.Info("params", OutVars{"out": "b.tar", "in": "a.tar"})
	out.State("exited", OutVars{"exit.code": 2, "reason": "bad"})
	out.Error("param.in", "missing")
	out.Message("done")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "cmd=normalize state=started", lines[0])
	assert.Equal(t, "cmd=normalize info=params in='a.tar' out='b.tar' ", lines[1])
	assert.Equal(t, "cmd=normalize state=exited code=2 reason=bad ", lines[2])
	assert.Equal(t, "cmd=normalize error=param.in message='missing'", lines[3])
	assert.Equal(t, "cmd=normalize message='done'", lines[4])
}

func TestOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput("verify", false, OutputFormatJSON, &buf)

	out.Info("image", OutVars{"verified": true})
	out.State("completed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &info))
	assert.Equal(t, "verify", info["cmd"])
	assert.Equal(t, "image", info["info"])
	assert.Equal(t, map[string]interface{}{"verified": true}, info["params"])

	assert.JSONEq(t, `{"cmd":"verify","state":"completed"}`, lines[1])
}

func TestOutputQuiet(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput("verify", true, OutputFormatText, &buf)

	out.State("started")
	out.Info("image")
	out.Error("archive", "bad")
	out.Message("hello")

	assert.Empty(t, buf.String())
}

func TestExecutionContextCleanup(t *testing.T) {
	var calls []int
	var exitCode int

	xc := NewExecutionContext("normalize", true, OutputFormatText)
	xc.exit = func(code int) { exitCode = code }
	xc.AddCleanupHandler(func() { calls = append(calls, 1) })
	xc.AddCleanupHandler(nil)
	xc.AddCleanupHandler(func() { calls = append(calls, 2) })

	xc.Exit(3)
	assert.Equal(t, []int{2, 1}, calls)
	assert.Equal(t, 3, exitCode)

	//handlers run once
	xc.Exit(4)
	assert.Equal(t, []int{2, 1}, calls)
	assert.Equal(t, 4, exitCode)
}

func TestExecutionContextFailOnNil(t *testing.T) {
	called := false
	xc := NewExecutionContext("normalize", true, OutputFormatText)
	xc.AddCleanupHandler(func() { called = true })

	xc.FailOn(nil)
	assert.False(t, called)
}
