package identity

import "crypto/rand"

// KeyLength is the length of generated activation keys, reset keys,
// and throwaway passwords
const KeyLength = 20

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

type randomTokens struct{}

// NewTokenGenerator returns a TokenGenerator producing fixed-length,
// URL-safe, cryptographically random keys
func NewTokenGenerator() TokenGenerator {
	return randomTokens{}
}

func (randomTokens) ActivationKey() (string, error) {
	return randomKey(KeyLength)
}

func (randomTokens) ResetKey() (string, error) {
	return randomKey(KeyLength)
}

func (randomTokens) Password() (string, error) {
	return randomKey(KeyLength)
}

func randomKey(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return string(buf), nil
}
