package main

import (
	"os"

	"github.com/hashicorp-forge/doccontrol/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
