// Command smokectl drives the propagation service HTTP API.
//
// Usage:
//
//	smokectl submit zone-1 --contributor agency-7 --smoke 4200 --wind-speed 3 --wind-direction 270
//	smokectl compute zone-1
//	smokectl disclose zone-1
//	smokectl status zone-1
//	smokectl keygen
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
