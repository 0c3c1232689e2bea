package main

import "github.com/chaos-dotcom/colourstream-sub003/cmd/coordinator/cmd"

func main() {
	cmd.Execute()
}
