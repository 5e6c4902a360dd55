package main

import "github.com/washdeskhq/washdesk/cmd"

func main() {
	cmd.Execute()
}
