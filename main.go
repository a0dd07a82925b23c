package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/courierchat/courier/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
