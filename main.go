package main

import "data-manager/cmd"

func main() {
	cmd.Execute()
}
