package main

import (
	"github.com/dshills/semindex-mcp/internal/cli"
)

var version = "dev"

func main() {
	cli.Execute(version)
}
