// The main package for the leadscan executable.
package main

import (
	"github.com/croftbar/leadscan/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
