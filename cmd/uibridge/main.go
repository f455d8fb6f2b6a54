package main

import "github.com/devicelab-dev/uibridge/pkg/cli"

func main() {
	cli.Execute()
}
