package main

import "github.com/mcoot/lazysignup-go/internal/cli"

func main() {
	cli.Execute()
}
