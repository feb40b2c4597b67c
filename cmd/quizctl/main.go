package main

import "github.com/mcoot/livequiz/internal/cli"

func main() {
	cli.Execute()
}
