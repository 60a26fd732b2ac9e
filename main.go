package main

import "github.com/kiesman99/tilegrid/cmd"

func main() {
	cmd.Execute()
}
