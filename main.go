package main

import (
	"log"

	"github.com/ManuelReschke/creditsync/internal/pkg/server"
)

func main() {
	app := server.NewApplication()
	log.Fatal(app.Run())
}
