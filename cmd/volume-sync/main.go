// Package main is the entry point for the volume-sync daemon and CLI.
package main

func main() {
	Execute()
}
