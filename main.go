package main

import "wingo/cmd"

func main() {
	cmd.Execute()
}
