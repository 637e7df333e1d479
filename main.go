package main

import (
	"os"

	"github.com/lloyd-blog/edge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
