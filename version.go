package crudo

var Version string

// buildVersion gets replaced while building with
// go build -ldflags "-X github.com/streetferret/crudo.buildVersion=1234"
var buildVersion string

// Name is reported to the host pipeline for logging and configuration display.
const Name = "OpenStreetMap Crudo"

func init() {
	Version = "0.1.0"
	Version += buildVersion
}
