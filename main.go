package main

import "github.com/vibast-solutions/ms-go-market-auth/cmd"

func main() {
	cmd.Execute()
}
