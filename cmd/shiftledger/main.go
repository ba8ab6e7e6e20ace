package main

import "github.com/shiftledger/shiftledger/cmd/shiftledger/cmd"

func main() {
	cmd.Execute()
}
