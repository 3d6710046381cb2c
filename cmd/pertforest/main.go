package main

import "pertforest/cmd/pertforest/cmd"

func main() {
	cmd.Execute()
}
