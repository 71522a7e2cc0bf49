// Package adaptive seals values stored at rest.
//
// A Cipher is an AEAD whose algorithm is picked from the platform:
// AES-256-GCM where the CPU accelerates AES, ChaCha20-Poly1305 elsewhere.
// Sealed values carry their nonce as a prefix.
//
// Keys are 32 bytes. FromPassphrase derives one from a configured
// passphrase with HKDF-SHA256.
package adaptive
