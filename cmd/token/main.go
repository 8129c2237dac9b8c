package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/johnquangdev/meeting-memory/pkg/config"
	"github.com/johnquangdev/meeting-memory/pkg/jwt"
)

// Issues a bearer token for exercising the authenticated meeting routes
// during development. The token is signed with the configured access
// secret, so it is only valid against a server sharing the same config.
func main() {
	userFlag := flag.String("user", "", "user id claim (random when empty)")
	emailFlag := flag.String("email", "dev@example.com", "email claim")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	userID := uuid.New()
	if *userFlag != "" {
		userID, err = uuid.Parse(*userFlag)
		if err != nil {
			log.Fatalf("Invalid user id: %v", err)
		}
	}

	manager := jwt.NewManager(cfg.JWT.AccessSecret, cfg.JWT.AccessExpiry)
	token, err := manager.GenerateAccessToken(userID, *emailFlag)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}

	fmt.Printf("user_id:    %s\n", userID)
	fmt.Printf("expires_in: %s\n", manager.GetAccessExpiry())
	fmt.Printf("Authorization: Bearer %s\n", token)
}
