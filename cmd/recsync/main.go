package main

import (
	"os"

	"recsync/cli"
)

func main() {
	os.Exit(cli.Execute())
}
