package main

import "github.com/citegraph/layout-engine/cmd/layoutctl/cmd"

func main() {
	cmd.Execute()
}
