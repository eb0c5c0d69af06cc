// The main package for the scrape-agent executable.
package main

import (
	"github.com/blackbox-ai/scrape-agent/cmd"
)

func main() {
	cmd.Execute()
}
