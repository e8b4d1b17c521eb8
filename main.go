package main

import "rxreader/cmd"

func main() {
	cmd.Execute()
}
