// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package auth

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrEnvelopeDecrypt indicates the x-encrypt-key header could not be
// decoded and decrypted into a plaintext payload.
var ErrEnvelopeDecrypt = errors.New("envelope decryption failed")

// EnvelopeCodec encrypts, decrypts, and signs authentication
// envelopes. Legacy callers encrypt the JSON payload with AES-ECB and
// no IV, then Base64-encode the ciphertext; decryption mirrors that
// scheme block by block. Signatures are hex-encoded HMAC-SHA256 over
// the envelope's canonical string.
//
// A codec is immutable after construction and safe for concurrent use.
type EnvelopeCodec struct {
	encryptKey []byte
	signKey    []byte
}

// NewEnvelopeCodec creates a codec. encryptKey must be a valid AES key
// (16, 24, or 32 bytes). signKey may be any non-empty byte string.
func NewEnvelopeCodec(encryptKey, signKey []byte) (*EnvelopeCodec, error) {
	switch len(encryptKey) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("encrypt key must be 16, 24, or 32 bytes, got %d", len(encryptKey))
	}
	if len(signKey) == 0 {
		return nil, errors.New("sign key must not be empty")
	}
	c := &EnvelopeCodec{
		encryptKey: append([]byte(nil), encryptKey...),
		signKey:    append([]byte(nil), signKey...),
	}
	return c, nil
}

// Decrypt decodes a Base64 header value and decrypts it to the
// plaintext envelope payload. All failures collapse into
// ErrEnvelopeDecrypt; the cause is preserved for logging via wrapping.
func (c *EnvelopeCodec) Decrypt(header string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64: %v", ErrEnvelopeDecrypt, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d not a positive multiple of the block size", ErrEnvelopeDecrypt, len(ciphertext))
	}

	block, err := aes.NewCipher(c.encryptKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeDecrypt, err)
	}

	plaintext := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		block.Decrypt(plaintext[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeDecrypt, err)
	}
	return unpadded, nil
}

// Encrypt pads and encrypts a plaintext payload and returns the
// Base64-encoded ciphertext, the inverse of Decrypt. Used by tests and
// by tooling that mints envelopes for callers.
func (c *EnvelopeCodec) Encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(c.encryptKey)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		block.Encrypt(ciphertext[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Sign computes the hex-encoded HMAC-SHA256 signature over the
// envelope's canonical string.
func (c *EnvelopeCodec) Sign(e *Envelope) string {
	mac := hmac.New(sha256.New, c.signKey)
	mac.Write([]byte(e.CanonicalString()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the signature and compares it with the
// envelope's sign field in constant time.
func (c *EnvelopeCodec) VerifySignature(e *Envelope) bool {
	expected := c.Sign(e)
	return hmac.Equal([]byte(expected), []byte(e.Sign))
}

// pkcs7Pad appends PKCS#7 padding up to the next block boundary.
// Input already on a boundary gets a full block of padding.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad strips and validates PKCS#7 padding. Every padding byte
// must equal the padding length.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padLen := int(data[len(data)-1])
	if padLen < 1 || padLen > blockSize {
		return nil, errors.New("invalid padding length")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("inconsistent padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
