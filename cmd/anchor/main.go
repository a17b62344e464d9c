// Command anchor runs, records, replays and checks the tick simulation.
package main

import (
	"os"

	"github.com/roach88/anchor/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
