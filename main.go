// The main package for the tululu-archiver executable.
package main

import (
	"github.com/JakeFAU/tululu-archiver/cmd"
)

func main() {
	cmd.Execute()
}
