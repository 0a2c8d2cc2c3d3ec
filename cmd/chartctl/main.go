// Command chartctl probes rendering backends, renders series files to PNG
// and benchmarks the adaptive renderer.
package main

import (
	"os"

	"github.com/gogpu/chart/cmd/chartctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
