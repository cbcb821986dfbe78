package main

import "github.com/dyike/StockMateGo/internal/cli"

func main() {
	cli.Run()
}
