package main

import "github.com/nextlevelbuilder/squabble/cmd"

func main() {
	cmd.Execute()
}
