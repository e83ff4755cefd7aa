// The main package for the cbcr-finder executable.
package main

import (
	"github.com/JakeFAU/cbcr-finder/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
