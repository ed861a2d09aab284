package main

import "github.com/vietddude/cogcall/internal/cli"

func main() {
	cli.Execute()
}
