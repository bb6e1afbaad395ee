package main

import "github.com/anchorweave/anchorweave/cli"

func main() {
	cli.Execute()
}
