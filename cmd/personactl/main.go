package main

import "github.com/pilab-dev/persona-client/cmd/personactl/cmd"

func main() {
	cmd.Execute()
}
