package main

import "github.com/chaos-dotcom/colourstream-sub003/cmd/linkctl/cmd"

func main() {
	cmd.Execute()
}
