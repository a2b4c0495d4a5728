package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Cipher seals and opens credential secrets with AES-256-GCM. The key comes
// from configuration and is never stored alongside the data; ciphertexts
// carry their nonce as a prefix.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(masterKey string) (*Cipher, error) {
	if masterKey == "" {
		return nil, errors.New("vault master key is required")
	}

	key, err := decodeKey(masterKey)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("initialising cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("initialising gcm: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// decodeKey accepts a 32-byte key as hex or base64; anything else is
// stretched through sha256 so dev setups with passphrase keys still work.
func decodeKey(masterKey string) ([]byte, error) {
	if decoded, err := hex.DecodeString(masterKey); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(masterKey); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	sum := sha256.Sum256([]byte(masterKey))
	return sum[:], nil
}

func (c *Cipher) Seal(plaintext string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

func (c *Cipher) Open(ciphertext []byte) (string, error) {
	if len(ciphertext) < c.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:c.aead.NonceSize()], ciphertext[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("opening ciphertext: %w", err)
	}
	return string(plaintext), nil
}
