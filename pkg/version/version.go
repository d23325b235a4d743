package version

// Set at build time with -ldflags "-X github.com/bizflycloud/veeam-jobctl/pkg/version.version=...".
var (
	version   string
	commit    string
	buildTime string
)

const name = "veeam-jobctl"

// Version returns the tool version, "dev" for local builds.
func Version() string {
	if version == "" {
		return "dev"
	}
	return version
}

// Commit returns the git commit the binary was built from.
func Commit() string {
	return commit
}

// BuildTime returns the build timestamp.
func BuildTime() string {
	return buildTime
}

// UserAgent is sent with every API request.
func UserAgent() string {
	return name + "/" + Version()
}
