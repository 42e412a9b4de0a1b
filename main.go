package main

import "github.com/kozaktomas/hijabist/cmd"

func main() {
	cmd.Execute()
}
