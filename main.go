package main

import "github.com/oemhub/identity-broker/cmd"

func main() {
	cmd.Execute()
}
