package consts

// App version constants
const (
	AppName        = "imagenorm"
	AppVersionName = "Canonical"
)

// Other constants that external users/consumers will see
const (
	DefaultReportFileName = "imagenorm.report.json"
	EnvVarPrefix          = "IMAGENORM_"
)
