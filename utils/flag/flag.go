/*
flag Package set up cli flags shared across services

Usage:

	Flags listed in this package are shared across boundaries and service-agnostic
	For service dependent flags please define in their respective package
*/

package flag

import (
	"flag"
)

const (
	Pipeline = "pipeline"
)

var (
	IsDevelopment bool
	ServiceName   string
)

func init() {
	flag.BoolVar(&IsDevelopment, "dev", true, "set to true if the current run is for development. default value is true")
	flag.StringVar(&ServiceName, "service", Pipeline, "name of the service for logging and metrics")
}

// Parse must be called from main before any flag value is read. It is not
// called from init so that `go test` can register its own flags first.
func Parse() {
	flag.Parse()
}
