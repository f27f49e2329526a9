package main

import (
	"os"

	"github.com/chandrahoro/reading-service/readingworker"
)

func main() {
	if err := readingworker.Run(); err != nil {
		os.Exit(1)
	}
}
