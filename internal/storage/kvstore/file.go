package kvstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/yndnr/storyline-go/pkg/crypto/adaptive"
)

// Magic bytes identify value files.
var magicBytes = []byte("STLNKV01")

const (
	fileExtension = ".kv"
	checksumSize  = 32
	headerVersion = 1
)

var (
	ErrInvalidMagic     = errors.New("kvstore: invalid magic bytes")
	ErrChecksumMismatch = errors.New("kvstore: checksum mismatch")
)

type fileHeader struct {
	Version   int    `json:"version"`
	Key       string `json:"key"`
	UpdatedAt int64  `json:"updated_at"`
	Encrypted bool   `json:"encrypted"`
}

// FileConfig configures a File store.
type FileConfig struct {
	Dir string

	// Quota bounds the total size of value files. <= 0 means unbounded.
	Quota int64

	// Cipher, when set, encrypts values at rest. The key is bound as
	// additional data.
	Cipher adaptive.Cipher
}

// File is a Store keeping one checksummed file per key.
//
// Layout: magic | u32 header len | header JSON | u32 data len | data | sha256.
// Files are written to a temp file and renamed into place.
type File struct {
	cfg FileConfig
	mu  sync.Mutex
}

// NewFile creates a file store rooted at cfg.Dir.
func NewFile(cfg FileConfig) (*File, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("kvstore: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("kvstore: create dir: %w", err)
	}
	return &File{cfg: cfg}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.cfg.Dir, hex.EncodeToString([]byte(key))+fileExtension)
}

// Get implements Store.
func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: read %q: %w", key, err)
	}
	return f.decode(key, raw)
}

// Set implements Store.
func (f *File) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	encoded, err := f.encode(key, value)
	if err != nil {
		return err
	}

	if f.cfg.Quota > 0 {
		used, err := f.usedLocked()
		if err != nil {
			return err
		}
		if st, err := os.Stat(f.path(key)); err == nil {
			used -= st.Size()
		}
		if used+int64(len(encoded)) > f.cfg.Quota {
			return ErrQuotaExceeded.WithDetails(fmt.Sprintf("key %q needs %d bytes, quota %d", key, used+int64(len(encoded)), f.cfg.Quota))
		}
	}

	final := f.path(key)
	tmp := final + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("kvstore: create temp file: %w", err)
	}
	defer os.Remove(tmp)

	if _, err := file.Write(encoded); err != nil {
		file.Close()
		return fmt.Errorf("kvstore: write: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("kvstore: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("kvstore: close: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("kvstore: rename: %w", err)
	}
	return nil
}

func (f *File) encode(key string, value []byte) ([]byte, error) {
	hdr := fileHeader{
		Version:   headerVersion,
		Key:       key,
		UpdatedAt: time.Now().UnixMilli(),
		Encrypted: f.cfg.Cipher != nil,
	}
	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("kvstore: marshal header: %w", err)
	}

	data := value
	if f.cfg.Cipher != nil {
		data, err = f.cfg.Cipher.Encrypt(value, []byte(key))
		if err != nil {
			return nil, fmt.Errorf("kvstore: encrypt: %w", err)
		}
	}

	var buf bytes.Buffer
	buf.Write(magicBytes)
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(hdrJSON)))
	buf.Write(n[:])
	buf.Write(hdrJSON)
	binary.BigEndian.PutUint32(n[:], uint32(len(data)))
	buf.Write(n[:])
	buf.Write(data)

	sum := sha256.Sum256(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

func (f *File) decode(key string, raw []byte) ([]byte, error) {
	if len(raw) < len(magicBytes)+8+checksumSize {
		return nil, ErrChecksumMismatch
	}
	body, trailer := raw[:len(raw)-checksumSize], raw[len(raw)-checksumSize:]
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], trailer) {
		return nil, ErrChecksumMismatch
	}
	if !bytes.Equal(body[:len(magicBytes)], magicBytes) {
		return nil, ErrInvalidMagic
	}

	r := bytes.NewReader(body[len(magicBytes):])
	hdrJSON, err := readBlock(r)
	if err != nil {
		return nil, fmt.Errorf("kvstore: read header: %w", err)
	}
	var hdr fileHeader
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, fmt.Errorf("kvstore: unmarshal header: %w", err)
	}
	if hdr.Key != key {
		return nil, fmt.Errorf("kvstore: file holds key %q, want %q", hdr.Key, key)
	}
	data, err := readBlock(r)
	if err != nil {
		return nil, fmt.Errorf("kvstore: read data: %w", err)
	}

	if !hdr.Encrypted {
		return data, nil
	}
	if f.cfg.Cipher == nil {
		return nil, fmt.Errorf("kvstore: %q is encrypted and no cipher is configured", key)
	}
	plain, err := f.cfg.Cipher.Decrypt(data, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("kvstore: decrypt: %w", err)
	}
	return plain, nil
}

func readBlock(r io.Reader) ([]byte, error) {
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, err
	}
	block := make([]byte, binary.BigEndian.Uint32(n[:]))
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, err
	}
	return block, nil
}

// Delete implements Store.
func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("kvstore: delete %q: %w", key, err)
	}
	return nil
}

// Keys implements Store.
func (f *File) Keys(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("kvstore: list: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), fileExtension)
		if !ok || e.IsDir() {
			continue
		}
		key, err := hex.DecodeString(name)
		if err != nil {
			continue
		}
		keys = append(keys, string(key))
	}
	return keys, nil
}

// Clear implements Store.
func (f *File) Clear(ctx context.Context) error {
	keys, err := f.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := f.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Used implements Usage.
func (f *File) Used() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	used, _ := f.usedLocked()
	return used
}

// Quota implements Usage.
func (f *File) Quota() int64 { return f.cfg.Quota }

func (f *File) usedLocked() (int64, error) {
	entries, err := os.ReadDir(f.cfg.Dir)
	if err != nil {
		return 0, fmt.Errorf("kvstore: list: %w", err)
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExtension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
