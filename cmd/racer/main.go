// Command racer is a small operator-facing CLI over the core model
// engine: a scripted demo against the in-memory DocStore, and
// snapshot save/load against bundle files on disk.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
