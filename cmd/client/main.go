package main

import (
	_ "github.com/eleven-am/voice-client/docs"
	"github.com/eleven-am/voice-client/internal/bootstrap"
)

// @title Voice Client API
// @version 1.0.0
// @description Control API for the live voice session

// @BasePath /api/v1

func main() {
	bootstrap.Run()
}
