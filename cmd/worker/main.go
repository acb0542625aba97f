package main

import (
	"log"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: worker <sweep|migrate>")
	}

	switch os.Args[1] {
	case "sweep":
		RunSweep(os.Args[2:])
	case "migrate":
		RunMigrate(os.Args[2:])
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}
