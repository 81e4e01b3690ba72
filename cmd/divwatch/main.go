package main

import (
	"divergence-watch/internal/cli"
)

func main() {
	cli.Execute()
}
