package main

import (
	"github.com/lumeo-ai/lumeo/internal/bootstrap"
)

func main() {
	bootstrap.Run()
}
