package main

import "memwatchd/internal/memctl"

func main() {
	memctl.Main()
}
