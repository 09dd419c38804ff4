package main

import (
	_ "retro/docs"
	"retro/internal/config"
	"retro/internal/server"

	"github.com/sirupsen/logrus"
)

// @title           Retro Board API
// @version         1.0
// @description     Live collaborative retrospective boards.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @schemes http
func main() {
	cfg := config.Load()

	s, err := server.Init(cfg)
	if err != nil {
		logrus.Fatalf("❌ Server initialization failed: %v", err)
	}

	if err := s.Run(); err != nil {
		s.Log.Fatalf("❌ Server stopped with error: %v", err)
	}
}
