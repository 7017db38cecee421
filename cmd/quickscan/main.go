package main

import "github.com/OpenTraceLab/OpenTraceScan/cmd/quickscan/cmd"

func main() {
	cmd.Execute()
}
