// The main package for the hn-archiver executable.
package main

import (
	"github.com/JakeFAU/hn-archiver/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
