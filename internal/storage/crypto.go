package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// FormatCBC is the magic prefix of encrypted objects.
const FormatCBC = "3NCR0PTD"

const pbkdf2Iterations = 100000

// IsEncrypted reports whether data starts with the encryption magic.
func IsEncrypted(data []byte) bool {
	return len(data) >= len(FormatCBC) && string(data[:len(FormatCBC)]) == FormatCBC
}

// encryptCBC encrypts data as
// magic(8) + sha256(32) + length(8) + salt(16) + iv(16) + ciphertext.
func encryptCBC(data []byte, password string) ([]byte, error) {
	salt := make([]byte, 16)
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := applyPKCS7Padding(data, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	body := make([]byte, 0, len(salt)+len(iv)+len(ciphertext))
	body = append(body, salt...)
	body = append(body, iv...)
	body = append(body, ciphertext...)
	hash := sha256.Sum256(body)

	length := make([]byte, 8)
	binary.BigEndian.PutUint64(length, uint64(len(body)))

	out := make([]byte, 0, len(FormatCBC)+32+8+len(body))
	out = append(out, FormatCBC...)
	out = append(out, hash[:]...)
	out = append(out, length...)
	out = append(out, body...)
	return out, nil
}

// decryptCBC reverses encryptCBC, verifying length and hash first.
func decryptCBC(data []byte, password string) ([]byte, error) {
	if len(data) < 8+32+8+16+16 {
		return nil, fmt.Errorf("encrypted data too short: %d bytes", len(data))
	}
	if !IsEncrypted(data) {
		return nil, fmt.Errorf("unknown encryption format %q", data[:8])
	}
	storedHash := data[8:40]
	length := binary.BigEndian.Uint64(data[40:48])
	body := data[48:]
	if uint64(len(body)) != length {
		return nil, fmt.Errorf("length mismatch: expected %d, got %d", length, len(body))
	}
	sum := sha256.Sum256(body)
	if !bytes.Equal(storedHash, sum[:]) {
		return nil, fmt.Errorf("hash verification failed - data corrupted")
	}

	salt, iv, ciphertext := body[:16], body[16:32], body[32:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext is not a multiple of block size")
	}
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return removePKCS7Padding(plaintext)
}

func applyPKCS7Padding(data []byte, blockSize int) []byte {
	padding := blockSize - (len(data) % blockSize)
	out := make([]byte, len(data), len(data)+padding)
	copy(out, data)
	return append(out, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func removePKCS7Padding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding length: %d", n)
	}
	for i := len(data) - n; i < len(data); i++ {
		if data[i] != byte(n) {
			return nil, fmt.Errorf("invalid padding at position %d", i)
		}
	}
	return data[:len(data)-n], nil
}
