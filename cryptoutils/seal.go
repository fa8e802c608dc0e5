package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	sealSaltSize  = 16
	sealNonceSize = 12
)

// Seal encrypts plaintext at rest with a key derived from passphrase.
//
// Format: [salt (16 bytes)][nonce (12 bytes)][ciphertext with GCM tag]
func Seal(passphrase []byte, plaintext []byte) ([]byte, error) {
	salt := make([]byte, sealSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aesGCM, err := sealingCipher(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, sealNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	result := make([]byte, 0, sealSaltSize+sealNonceSize+len(plaintext)+aesGCM.Overhead())
	result = append(result, salt...)
	result = append(result, nonce...)
	return aesGCM.Seal(result, nonce, plaintext, salt), nil
}

// Open decrypts data produced by Seal.
func Open(passphrase []byte, sealed []byte) ([]byte, error) {
	if len(sealed) < sealSaltSize+sealNonceSize {
		return nil, errors.New("sealed data too short")
	}

	salt := sealed[:sealSaltSize]
	nonce := sealed[sealSaltSize : sealSaltSize+sealNonceSize]
	ciphertext := sealed[sealSaltSize+sealNonceSize:]

	aesGCM, err := sealingCipher(passphrase, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func sealingCipher(passphrase, salt []byte) (cipher.AEAD, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("empty passphrase")
	}

	// Parameters: time=1, memory=64*1024, threads=4, keyLen=32
	key := argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
