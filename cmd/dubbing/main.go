package main

import "dubbing-service/internal/cli"

func main() {
	cli.Main()
}
