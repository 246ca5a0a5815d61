// Command server is nanoserve's entrypoint: it builds and executes
// the cobra CLI defined in internal/cli.
package main

import (
	"log"

	"github.com/nanoserve/nanoserve/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		log.Fatal(err)
	}
}
