package main

import "github.com/bryansray/fusion/cmd"

func main() {
	cmd.Execute()
}
