package errutil

import (
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	errs "github.com/slimtoolkit/imagenorm/pkg/errors"
	"github.com/slimtoolkit/imagenorm/pkg/version"
)

// FailOnWithInfo logs the error information with additional context info (terminates the application)
func FailOnWithInfo(err error, info map[string]string) {
	if err != nil {
		fields := errorFields(err)
		for k, v := range info {
			fields["info."+k] = v
		}

		log.WithError(err).WithFields(fields).Fatal("imagenorm: failure")
	}
}

// FailOn logs the error information (terminates the application)
func FailOn(err error) {
	if err != nil {
		log.WithError(err).WithFields(errorFields(err)).Fatal("imagenorm: failure")
	}
}

// WarnOn logs the error information as a warning
func WarnOn(err error) {
	if err != nil {
		log.WithError(err).WithFields(errorFields(err)).Warn("imagenorm: warning")
	}
}

// FailWhen logs the given message if the condition is true (terminates the application)
func FailWhen(cond bool, msg string) {
	if cond {
		Fail(msg)
	}
}

// Fail logs the given messages and terminates the application
func Fail(msg string) {
	log.WithFields(log.Fields{
		"version": version.Current(),
		"error":   msg,
		"stack":   string(debug.Stack()),
	}).Fatal("imagenorm: failure")
}

func errorFields(err error) log.Fields {
	fields := log.Fields{
		"version": version.Current(),
		"stack":   string(debug.Stack()),
	}

	if kind, ok := errs.KindOf(err); ok {
		fields["kind"] = kind
	}

	return fields
}
