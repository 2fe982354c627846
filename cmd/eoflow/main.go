package main

import "github.com/LENAX/eoflow/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
