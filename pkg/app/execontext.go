package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/slimtoolkit/imagenorm/pkg/util/errutil"
)

const (
	OutputFormatJSON = "json"
	OutputFormatText = "text"
)

type ExecutionContext struct {
	Out             *Output
	cleanupHandlers []func()
	exit            func(int)
}

func (ref *ExecutionContext) Exit(exitCode int) {
	ref.doCleanup()
	ref.exit(exitCode)
}

func (ref *ExecutionContext) AddCleanupHandler(handler func()) {
	if handler != nil {
		ref.cleanupHandlers = append(ref.cleanupHandlers, handler)
	}
}

func (ref *ExecutionContext) doCleanup() {
	if len(ref.cleanupHandlers) == 0 {
		return
	}

	//call cleanup handlers in reverse order
	for i := len(ref.cleanupHandlers) - 1; i >= 0; i-- {
		cleanup := ref.cleanupHandlers[i]
		if cleanup != nil {
			cleanup()
		}
	}

	ref.cleanupHandlers = nil
}

func (ref *ExecutionContext) FailOn(err error) {
	if err != nil {
		ref.doCleanup()
	}

	errutil.FailOn(err)
}

func NewExecutionContext(cmdName string, quiet bool, outputFormat string) *ExecutionContext {
	return &ExecutionContext{
		Out:  NewOutput(cmdName, quiet, outputFormat, os.Stdout),
		exit: os.Exit,
	}
}

type Output struct {
	CmdName      string
	Quiet        bool
	OutputFormat string
	w            io.Writer
}

func NewOutput(cmdName string, quiet bool, outputFormat string, w io.Writer) *Output {
	return &Output{
		CmdName:      cmdName,
		Quiet:        quiet,
		OutputFormat: outputFormat,
		w:            w,
	}
}

func NoColor() {
	color.NoColor = true
}

type OutVars map[string]interface{}

func (ref *Output) jsonLine(fields OutVars, params ...OutVars) {
	line := OutVars{"cmd": ref.CmdName}
	for k, v := range fields {
		line[k] = v
	}

	if len(params) > 0 && len(params[0]) > 0 {
		line["params"] = params[0]
	}

	data, err := json.Marshal(line)
	if err != nil {
		fmt.Fprintf(ref.w, "{\"cmd\":%q,\"error\":\"output\",\"message\":%q}\n", ref.CmdName, err.Error())
		return
	}

	fmt.Fprintln(ref.w, string(data))
}

func (ref *Output) Error(errType string, data string) {
	if ref.Quiet {
		return
	}

	if ref.OutputFormat == OutputFormatJSON {
		ref.jsonLine(OutVars{"error": errType, "message": data})
		return
	}

	color.Set(color.FgHiRed)
	defer color.Unset()

	fmt.Fprintf(ref.w, "cmd=%s error=%s message='%s'\n", ref.CmdName, errType, data)
}

func (ref *Output) Message(data string) {
	if ref.Quiet {
		return
	}

	if ref.OutputFormat == OutputFormatJSON {
		ref.jsonLine(OutVars{"message": data})
		return
	}

	color.Set(color.FgHiMagenta)
	defer color.Unset()

	fmt.Fprintf(ref.w, "cmd=%s message='%s'\n", ref.CmdName, data)
}

func (ref *Output) State(state string, params ...OutVars) {
	if ref.Quiet {
		return
	}

	if ref.OutputFormat == OutputFormatJSON {
		ref.jsonLine(OutVars{"state": state}, params...)
		return
	}

	var exitInfo string
	var info string
	var sep string

	if len(params) > 0 {
		var minCount int
		kvSet := params[0]
		if exitCode, ok := kvSet["exit.code"]; ok {
			minCount = 1
			exitInfo = fmt.Sprintf(" code=%d", exitCode)
		}

		if len(kvSet) > minCount {
			var builder strings.Builder
			sep = " "

			for _, k := range sortedKeys(kvSet) {
				if k == "exit.code" {
					continue
				}

				builder.WriteString(k)
				builder.WriteString("=")
				builder.WriteString(fmt.Sprintf("%v", kvSet[k]))
				builder.WriteString(" ")
			}

			info = builder.String()
		}
	}

	if state == "exited" {
		color.Set(color.FgHiRed, color.Bold)
	} else {
		color.Set(color.FgCyan, color.Bold)
	}
	defer color.Unset()

	fmt.Fprintf(ref.w, "cmd=%s state=%s%s%s%s\n", ref.CmdName, state, exitInfo, sep, info)
}

var (
	itcolor = color.New(color.FgMagenta, color.Bold).SprintFunc()
	kcolor  = color.New(color.FgHiGreen, color.Bold).SprintFunc()
	vcolor  = color.New(color.FgHiBlue).SprintfFunc()
)

func (ref *Output) Info(infoType string, params ...OutVars) {
	if ref.Quiet {
		return
	}

	if ref.OutputFormat == OutputFormatJSON {
		ref.jsonLine(OutVars{"info": infoType}, params...)
		return
	}

	var data string
	var sep string

	if len(params) > 0 {
		kvSet := params[0]
		if len(kvSet) > 0 {
			var builder strings.Builder
			sep = " "

			for _, k := range sortedKeys(kvSet) {
				builder.WriteString(kcolor(k))
				builder.WriteString("=")
				builder.WriteString(fmt.Sprintf("'%s'", vcolor("%v", kvSet[k])))
				builder.WriteString(" ")
			}

			data = builder.String()
		}
	}

	fmt.Fprintf(ref.w, "cmd=%s info=%s%s%s\n", ref.CmdName, itcolor(infoType), sep, data)
}

func sortedKeys(kvSet OutVars) []string {
	keys := make([]string, 0, len(kvSet))
	for k := range kvSet {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}
