package main

import "pic-fusion/cmd"

func main() {
	cmd.Execute()
}
