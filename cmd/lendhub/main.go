// cmd/lendhub/main.go
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"lendhub/internal/cli"
)

var version = "dev"

func main() {
	root := cli.NewRootCmd(version)

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
