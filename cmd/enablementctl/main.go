package main

import "github.com/phonginreallife/enablement/internal/cli"

func main() {
	cli.Execute()
}
