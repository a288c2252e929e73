package main

import (
	"github.com/coursemirror/coursemirror/cmd"
	"github.com/coursemirror/coursemirror/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
