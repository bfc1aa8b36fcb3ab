package main

import (
	"os"

	"horse.fit/chatsense/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
