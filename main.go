package main

import (
	"os"

	"github.com/InsiderPie/http-reload-proxy/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
