package main

import (
	"os"

	"github.com/chandrahoro/reading-service/readingservice"
)

func main() {
	if err := readingservice.Run(); err != nil {
		os.Exit(1)
	}
}
