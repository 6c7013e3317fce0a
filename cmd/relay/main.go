package main

import "relay/cmd/relay/cmd"

func main() { cmd.Execute() }
