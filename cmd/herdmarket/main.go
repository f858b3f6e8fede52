package main

import (
	"os"

	"github.com/zappabad/herdmarket/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
