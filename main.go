package main

import "github.com/audiolibrelab/vidcapture/cmd"

func main() {
	cmd.Execute()
}
