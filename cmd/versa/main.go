// Command versa manages the tables of a versioned entity store and
// generates typed wrappers from its entity catalog.
package main

import (
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
