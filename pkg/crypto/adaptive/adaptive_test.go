package adaptive

import (
	"bytes"
	"errors"
	"testing"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func ciphers(t *testing.T) map[CipherType]Cipher {
	t.Helper()
	out := map[CipherType]Cipher{}
	for _, typ := range []CipherType{CipherAESGCM, CipherChaCha20} {
		c, err := NewWithType(testKey(), typ)
		if err != nil {
			t.Fatalf("NewWithType(%s): %v", typ, err)
		}
		out[typ] = c
	}
	return out
}

func TestNew_Preferred(t *testing.T) {
	c, err := New(testKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Type() != Preferred() {
		t.Errorf("Type() = %s, want %s", c.Type(), Preferred())
	}
}

func TestNewWithType_Errors(t *testing.T) {
	if _, err := NewWithType(make([]byte, 16), CipherAESGCM); !errors.Is(err, ErrKeySize) {
		t.Errorf("16-byte key error = %v, want ErrKeySize", err)
	}
	if _, err := NewWithType(testKey(), "rot13"); err == nil {
		t.Error("unknown type accepted")
	}
	c, err := NewWithType(testKey(), "")
	if err != nil || c.Type() != Preferred() {
		t.Errorf("empty type = %v, %v", c, err)
	}
}

func TestRoundTrip(t *testing.T) {
	for typ, c := range ciphers(t) {
		t.Run(string(typ), func(t *testing.T) {
			for _, size := range []int{0, 1, 1024} {
				plain := bytes.Repeat([]byte{0x5a}, size)
				sealed, err := c.Encrypt(plain, []byte("save.slot.1"))
				if err != nil {
					t.Fatalf("Encrypt: %v", err)
				}
				if len(sealed) != size+c.NonceSize()+c.Overhead() {
					t.Errorf("sealed len = %d", len(sealed))
				}
				got, err := c.Decrypt(sealed, []byte("save.slot.1"))
				if err != nil {
					t.Fatalf("Decrypt: %v", err)
				}
				if !bytes.Equal(got, plain) {
					t.Errorf("round trip of %d bytes changed the value", size)
				}
			}
		})
	}
}

func TestDecrypt_Rejects(t *testing.T) {
	for typ, c := range ciphers(t) {
		t.Run(string(typ), func(t *testing.T) {
			sealed, err := c.Encrypt([]byte("moment"), []byte("a"))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := c.Decrypt(sealed, []byte("b")); err == nil {
				t.Error("wrong additional data accepted")
			}
			tampered := append([]byte(nil), sealed...)
			tampered[len(tampered)-1] ^= 0xff
			if _, err := c.Decrypt(tampered, []byte("a")); err == nil {
				t.Error("tampered ciphertext accepted")
			}
			if _, err := c.Decrypt(sealed[:c.NonceSize()], []byte("a")); !errors.Is(err, ErrShortCiphertext) {
				t.Errorf("short ciphertext error = %v, want ErrShortCiphertext", err)
			}
		})
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	c, _ := New(testKey())
	a, _ := c.Encrypt([]byte("same"), nil)
	b, _ := c.Encrypt([]byte("same"), nil)
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same value are identical")
	}
}

func TestFromPassphrase(t *testing.T) {
	if _, err := FromPassphrase("", ""); !errors.Is(err, ErrEmptyPassphrase) {
		t.Errorf("empty passphrase error = %v", err)
	}

	a, err := FromPassphrase("open sesame", CipherChaCha20)
	if err != nil {
		t.Fatalf("FromPassphrase: %v", err)
	}
	b, _ := FromPassphrase("open sesame", CipherChaCha20)
	other, _ := FromPassphrase("close sesame", CipherChaCha20)

	sealed, _ := a.Encrypt([]byte("slot"), nil)
	if _, err := b.Decrypt(sealed, nil); err != nil {
		t.Errorf("same passphrase cannot decrypt: %v", err)
	}
	if _, err := other.Decrypt(sealed, nil); err == nil {
		t.Error("different passphrase decrypted the value")
	}

	k1, _ := DeriveKey("x")
	k2, _ := DeriveKey("x")
	if !bytes.Equal(k1, k2) || len(k1) != KeySize {
		t.Errorf("DeriveKey not deterministic or wrong size: %d", len(k1))
	}
}

func BenchmarkEncrypt_1KB(b *testing.B) {
	for _, typ := range []CipherType{CipherAESGCM, CipherChaCha20} {
		c, _ := NewWithType(testKey(), typ)
		plain := make([]byte, 1024)
		b.Run(string(typ), func(b *testing.B) {
			b.SetBytes(1024)
			for i := 0; i < b.N; i++ {
				_, _ = c.Encrypt(plain, nil)
			}
		})
	}
}
