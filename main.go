package main

import "github.com/ftl/channelizer/cmd"

func main() {
	cmd.Execute()
}
