package main

import "github.com/ByLCY/papyrus-chat/cmd"

func main() {
	cmd.Execute()
}
