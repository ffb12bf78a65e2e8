// Package main implements the modguard CLI tool.
//
// modguard instruments encoded modules with diagnostic runtime checks:
//
//  1. Decoding each module into its structural model
//  2. Running the constant-drift, thread-affinity and leak transformers
//  3. Re-encoding the modules that changed
//
// Usage:
//
//	modguard transform -o out/ modules/    # Instrument a directory of modules
//	modguard watch -o out/ modules/        # Instrument modules as they appear
//	modguard inspect out/com.example.Conn.mgm
//
// Settings come from modguard.yaml, MODGUARD_* environment variables and
// flags, in increasing priority.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
