package main

import (
	"os"

	"github.com/hortensia-labs/theodore-popyto-sub001/cmd/citationcore/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
