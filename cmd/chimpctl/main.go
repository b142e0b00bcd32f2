package main

import (
	"github.com/G-Research/chimp/cmd/chimpctl/cmd"
	"github.com/G-Research/chimp/internal/common"
)

func main() {
	common.ConfigureCommandLineLogging()
	cmd.Execute()
}
