package main

import "github.com/ppiankov/govtrail/internal/cli"

func main() {
	cli.Execute()
}
