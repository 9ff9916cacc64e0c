package main

import "deadsongs/cmd"

func main() {
	cmd.Execute()
}
