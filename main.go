package main

import (
	"VcFM/cmd"
)

func main() {
	cmd.Execute()
}
