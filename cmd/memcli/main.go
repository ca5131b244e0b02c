package main

import (
	"fmt"
	"os"
)

const (
	version = "v0.1.0"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
