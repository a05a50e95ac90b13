package sessions

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

var ten = big.NewInt(10)

func generateOTP(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// hashOTP binds the code to its challenge so a hash cannot be replayed
// against another session.
func hashOTP(secret []byte, challengeRef, code string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(challengeRef))
	mac.Write([]byte{':'})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyOTP(secret []byte, s *Session, code string) bool {
	if code == "" || s.OTPHash == "" {
		return false
	}
	want, err := hex.DecodeString(s.OTPHash)
	if err != nil {
		return false
	}
	got, _ := hex.DecodeString(hashOTP(secret, s.ChallengeRef, code))
	return hmac.Equal(got, want)
}

func consentMessage(agentName, center, purpose, code string, ttl time.Duration) string {
	return fmt.Sprintf(
		"Agent %s at %s requests access to your KisaanSeva account for: %s. OTP: %s. Valid for %d minutes.",
		agentName, center, purpose, code, int(ttl.Minutes()),
	)
}
