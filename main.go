// main.go
package main

import (
	"log"

	"nft-ticket/cmd"
	_ "nft-ticket/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
