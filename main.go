package main

import (
	"os"

	"listing-scraper/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
