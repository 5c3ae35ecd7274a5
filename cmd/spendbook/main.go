package main

import "spendbook/cmd/spendbook/cmd"

func main() {
	cmd.Execute()
}
