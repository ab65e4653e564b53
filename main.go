package main

import "github.com/mpapenbr/timing-service-go/cmd"

func main() {
	cmd.Execute()
}
