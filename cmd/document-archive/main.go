package main

import (
	"os"
)

// @title Document Archive API
// @version 1.0.0
// @description Document ingestion with asynchronous PDF/A archive and thumbnail generation
// @BasePath /api/v1
// @schemes http

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
