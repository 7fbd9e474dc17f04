// The main package for the addrcrawl executable.
package main

import (
	"os"

	"github.com/JakeFAU/addrcrawl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
