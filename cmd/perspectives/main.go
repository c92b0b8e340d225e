package main

import "perspectives-watch/cmd/perspectives/commands"

func main() {
	commands.Execute()
}
