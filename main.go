// The main package for the georeport executable.
package main

import (
	"github.com/JakeFAU/geo-report-client/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
