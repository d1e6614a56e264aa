package util

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

const sessionIDBytes = 16

// GenerateSessionID returns 128 random bits, hex encoded.
func GenerateSessionID() (string, error) {
	bytes := make([]byte, sessionIDBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// MaskPhone keeps the leading country code and the last two digits.
func MaskPhone(phone string) string {
	if len(phone) <= 5 {
		return "****"
	}
	return phone[:3] + "****" + phone[len(phone)-2:]
}
