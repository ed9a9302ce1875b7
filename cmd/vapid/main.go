// Command vapid prints a fresh VAPID key pair for web push, in .env format.
package main

import (
	"fmt"
	"log"

	"gigchat/internal/push"
)

func main() {
	privateKey, publicKey, err := push.GenerateKeys()
	if err != nil {
		log.Fatalf("failed to generate VAPID keys: %v", err)
	}

	fmt.Printf("VAPID_PUBLIC_KEY=%s\n", publicKey)
	fmt.Printf("VAPID_PRIVATE_KEY=%s\n", privateKey)
}
