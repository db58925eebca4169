package main

import "github.com/bz888/gab/cmd"

func main() {
	cmd.Execute()
}
