package main

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sgl-project/fallible/pkg/storage"
)

// sealer encrypts objects with AES-256-GCM. Stored objects are the nonce
// followed by the sealed payload.
type sealer struct {
	aead cipher.AEAD
}

// loadSealer reads a hex-encoded 32-byte key from path.
func loadSealer(path string) (*sealer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("key file must hold a hex-encoded key: %w", err)
	}
	return newSealer(key)
}

func newSealer(key []byte) (*sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) encrypt(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *sealer) decrypt(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, errors.New("ciphertext too short")
	}
	return s.aead.Open(nil, sealed[:n], sealed[n:], nil)
}

// transforms returns the encrypt and decrypt hooks for keyFile, or nil
// hooks when no key file is given.
func transforms(keyFile string) (encrypt, decrypt storage.TransformFunc, err error) {
	if keyFile == "" {
		return nil, nil, nil
	}
	s, err := loadSealer(keyFile)
	if err != nil {
		return nil, nil, err
	}
	return s.encrypt, s.decrypt, nil
}
