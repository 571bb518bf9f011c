// pkg/vault/crypto.go
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Cipher seals secret plaintext with AES-GCM when key material is set; with
// an empty key it passes plaintext through (dev only, warned at boot).
type Cipher struct {
	key []byte
}

func NewCipher(key string) *Cipher { return &Cipher{key: []byte(key)} }

func (c *Cipher) Encrypt(plain string) ([]byte, error) {
	if len(c.key) == 0 {
		return []byte(plain), nil
	}
	h := sha256.Sum256(c.key)
	block, err := aes.NewCipher(h[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ct := gcm.Seal(nil, nonce, []byte(plain), nil)
	out := make([]byte, 1+len(nonce)+len(ct))
	out[0] = 0x01
	copy(out[1:1+len(nonce)], nonce)
	copy(out[1+len(nonce):], ct)
	return out, nil
}

func (c *Cipher) Decrypt(sealed []byte) (string, error) {
	if len(c.key) == 0 {
		return string(sealed), nil
	}
	if len(sealed) < 2 || sealed[0] != 0x01 {
		return "", errors.New("vault: unrecognized ciphertext framing")
	}
	h := sha256.Sum256(c.key)
	block, err := aes.NewCipher(h[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	ns := gcm.NonceSize()
	if len(sealed) < 1+ns+1 {
		return "", errors.New("vault: ciphertext too short")
	}
	plain, err := gcm.Open(nil, sealed[1:1+ns], sealed[1+ns:], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Fingerprint is the sha256 hex digest of the plaintext. Audit/dedup only.
func Fingerprint(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
