package version

import (
	"fmt"
	"runtime"

	"github.com/slimtoolkit/imagenorm/pkg/consts"
)

// set with -ldflags at build time
var (
	appVersionTag  = "latest"
	appVersionRev  = "latest"
	appVersionTime = "latest"
	currentVersion = "v"
)

func init() {
	currentVersion = fmt.Sprintf("%v|%v|%v|%v|%v", runtime.GOOS, consts.AppVersionName, appVersionTag, appVersionRev, appVersionTime)
}

// Current returns the current version information
func Current() string {
	return currentVersion
}

func Tag() string {
	return appVersionTag
}

func Revision() string {
	return appVersionRev
}

func BuildTime() string {
	return appVersionTime
}
