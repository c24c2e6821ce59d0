package main

import "github.com/ferguskendall2k/devman/cmd"

func main() {
	cmd.Execute()
}
