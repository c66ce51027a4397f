package main

import "github.com/KaoticFocus/BluidFlow-Pro2025-sub000/cmd"

func main() {
	cmd.Execute()
}
