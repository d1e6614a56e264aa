// Command hash-admin-key prints a bcrypt hash for ADMIN_API_KEY_HASH. Without
// an argument it generates a random key and prints it too.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	key := ""
	if len(os.Args) > 1 {
		key = os.Args[1]
	} else {
		buf := make([]byte, 24)
		if _, err := rand.Read(buf); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		key = hex.EncodeToString(buf)
		fmt.Printf("key:  %s\n", key)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), 12)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 {
		fmt.Println(string(hash))
		return
	}
	fmt.Printf("hash: %s\n", hash)
}
