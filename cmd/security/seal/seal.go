package seal

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var magic = []byte{'A', 'F', 'S', '1'}

// Sealer seals and opens blobs under one passphrase.
// It is safe for concurrent use.
type Sealer struct {
	passphrase []byte
	params     Params
}

// New returns a Sealer for passphrase.
func New(passphrase string, params Params) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Sealer{passphrase: []byte(passphrase), params: params}, nil
}

// DeriveKey derives a XChaCha20-Poly1305 key from passphrase and salt.
func DeriveKey(passphrase, salt []byte, p Params) []byte {
	return argon2.IDKey(
		passphrase,
		salt,
		p.Iterations,
		p.MemoryKiB,
		p.Parallelism,
		chacha20poly1305.KeySize,
	)
}

// Seal encrypts plaintext. The key name is bound as associated data so a
// blob cannot be swapped between keys.
func (s *Sealer) Seal(name string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, s.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("seal: salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(DeriveKey(s.passphrase, salt, s.params))
	if err != nil {
		return nil, fmt.Errorf("seal: cipher: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("seal: nonce: %w", err)
	}

	out := make([]byte, 0, len(magic)+len(salt)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, []byte(name)), nil
}

// Open decrypts a blob produced by Seal with the same name.
func (s *Sealer) Open(name string, blob []byte) ([]byte, error) {
	saltLen := int(s.params.SaltLength)
	header := len(magic) + saltLen + chacha20poly1305.NonceSizeX
	if len(blob) < header+chacha20poly1305.Overhead || !bytes.Equal(blob[:len(magic)], magic) {
		return nil, ErrInvalidSealed
	}

	salt := blob[len(magic) : len(magic)+saltLen]
	nonce := blob[len(magic)+saltLen : header]

	aead, err := chacha20poly1305.NewX(DeriveKey(s.passphrase, salt, s.params))
	if err != nil {
		return nil, fmt.Errorf("seal: cipher: %w", err)
	}

	plain, err := aead.Open(nil, nonce, blob[header:], []byte(name))
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// IsSealed reports whether blob carries the sealed-blob header.
func IsSealed(blob []byte) bool {
	return len(blob) >= len(magic) && bytes.Equal(blob[:len(magic)], magic)
}
