package main

import (
	"log"

	"github.com/thiagokokada/gitdeps/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		log.Fatalf("gitdeps: %v", err)
	}
}
