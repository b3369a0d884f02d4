package main

import "github.com/mchmarny/expctl/pkg/cli"

func main() {
	cli.Execute()
}
