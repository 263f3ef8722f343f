package main

import "github.com/rustyeddy/commons/internal/cli"

func main() {
	cli.Execute()
}
