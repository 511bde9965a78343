package main

import "github.com/nfrund/pulse/cmd/server/cmd"

func main() {
	cmd.Execute()
}
