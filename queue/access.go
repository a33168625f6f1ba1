package queue

import (
	"crypto/rand"
	"fmt"

	"github.com/waitline/waitline/errors"
)

const accessTokenLength = 8

const accessTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewAccessToken generates the 8-character alphanumeric secret minted
// for a TOKEN_BASED queue.
func NewAccessToken() (string, error) {
	buf := make([]byte, accessTokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to generate access token")
	}
	for i, b := range buf {
		buf[i] = accessTokenAlphabet[int(b)%len(accessTokenAlphabet)]
	}
	return string(buf), nil
}

// JoinURL builds the link a queue owner hands out (typically as a QR
// code) for joining a TOKEN_BASED queue.
func JoinURL(frontendBase string, queueID int64, accessToken string) string {
	return fmt.Sprintf("%s/queue/join/%d?token=%s", frontendBase, queueID, accessToken)
}
