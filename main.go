package main

import "github.com/jsphweid/smartpiano/cmd"

func main() {
	cmd.Execute()
}
