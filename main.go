package main

import "github.com/coursebot/assistant/cmd"

func main() {
	cmd.Execute()
}
