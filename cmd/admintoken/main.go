// cmd/admintoken/main.go
// Prints a signed admin token for the /admin routes.
//
// Usage:
//
//	go run ./cmd/admintoken -subject ops -ttl 720h
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/padraicbc/f1mirror/config"
	mw "github.com/padraicbc/f1mirror/middleware"
)

func main() {
	subject := flag.String("subject", "", "who the token is issued to (required)")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "token lifetime")
	flag.Parse()

	if *subject == "" {
		log.Fatal("-subject is required")
	}

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is empty; admin routes are disabled")
	}

	token, err := mw.NewAdminToken(cfg.JWTKey(), *subject, *ttl)
	if err != nil {
		log.Fatal("sign token:", err)
	}
	fmt.Println(token)
}
