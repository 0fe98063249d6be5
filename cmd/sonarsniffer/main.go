/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"github.com/nautidog/sonarsniffer/cmd/sonarsniffer/cmd"
)

func main() {
	cmd.Execute()
}
