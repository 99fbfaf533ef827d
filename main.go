package main

import "github.com/frahmantamala/coursehub/cmd"

func main() {
	cmd.Execute()
}
