package main

import "relayhub/cmd/cli/command"

func main() {
	command.Execute()
}
