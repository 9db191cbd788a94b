package main

import "crossarb/cmd"

func main() {
	cmd.Execute()
}
