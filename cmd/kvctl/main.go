package main

import (
	"os"

	. "github.com/stevegt/goadapt"
)

func main() {
	config := NewCliConfig()
	rc, err := Cli(os.Args[1:], config)
	Ck(err)
	os.Exit(rc)
}
