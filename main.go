// Package main provides the entry point for rvjit.
// rvjit is an RV32IMA emulator that compiles hot straight-line blocks to
// native code.
//
// For the full CLI, use: go run ./cmd/rvjit
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rvjit - RV32IMA interpreter with a QBE block JIT")
	fmt.Println("")
	fmt.Println("Usage: rvjit [options] <image>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to a JSON or YAML configuration file")
	fmt.Println("  -jit       JIT backend: qbe, eval or none")
	fmt.Println("  -d         Abort on the first guest fault")
	fmt.Println("  -stats     Print execution statistics on exit")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rvjit' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rvjit' instead.")
	}
}
