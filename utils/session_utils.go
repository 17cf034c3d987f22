package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"time"
)

// GenerateSessionID creates the client-side session identifier. It is
// opaque to the server; the tracker regenerates it only on an explicit
// reset back to the entry page.
func GenerateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		log.Printf("ERROR: Failed to generate random bytes for session ID: %v", err)
		return fmt.Sprintf("session_%d", time.Now().UnixMilli())
	}
	return "session_" + base64.RawURLEncoding.EncodeToString(b)
}
