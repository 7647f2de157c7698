// The main package for the legisnotice executable.
package main

import (
	"github.com/JakeFAU/legisnotice/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
