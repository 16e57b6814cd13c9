// Package seal encrypts small secrets at rest under a passphrase.
//
// A key is derived with Argon2id from the passphrase and a per-blob random
// salt, then the payload is sealed with XChaCha20-Poly1305. The blob layout is:
//
//	magic(4) | salt(SaltLength) | nonce(24) | ciphertext+tag
//
// The Argon2id cost parameters are not stored in the blob; a reader must use
// the same Params as the writer.
package seal
