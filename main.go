// The main package for the pulseflow executable.
package main

import (
	"github.com/JakeFAU/pulseflow/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
