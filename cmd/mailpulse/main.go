package main

import "github.com/aaronromeo/mailpulse/internal/cli"

func main() {
	cli.Execute()
}
