package main

import "github.com/Belogorec/marsu-bot2/internal/cli"

func main() {
	cli.Execute()
}
