package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "fieldproxy-admin: "+err.Error())
		os.Exit(1)
	}
}
