// Command locator runs the geo cascade service and its maintenance commands.
package main

import "os"

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
