package main

import "github.com/s22625/nexusflow/internal/cli"

func main() {
	cli.Execute()
}
