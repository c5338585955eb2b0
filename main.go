/*
Copyright © 2025 Dean
*/
package main

import "packsight/cmd"

func main() {
	cmd.Execute()
}
