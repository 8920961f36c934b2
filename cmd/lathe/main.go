package main

import "github.com/mvp-joe/project-lathe/internal/cli"

func main() {
	cli.Execute()
}
