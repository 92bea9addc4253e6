package main

import (
	"os"

	"github.com/go-drift/geolocation/cmd/geoloc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
