// Package simplecrypt implements the light symmetric obfuscation used for
// password-protected .fnx files. It is not strong cryptography; it exists so
// that protected notes are not stored as readable XML, and it is byte
// compatible with files written by earlier FeatherNotes releases.
//
// Layout of a ciphertext before base64 encoding:
//
//	0x03 | flags | XOR-chained( random byte | [crc16 or sha1] | payload )
//
// where payload is optionally zlib-compressed with a 4-byte big-endian
// length prefix.
package simplecrypt

import (
	"bytes"
	"compress/zlib"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// AppKey is the fixed key embedded in FeatherNotes.
const AppKey uint64 = 0xc9a25eb1610eb104

const version = 0x03

// Flags stored in the second header byte.
const (
	FlagCompression byte = 0x01
	FlagChecksum    byte = 0x02
	FlagHash        byte = 0x04
)

var (
	ErrNoKey          = errors.New("simplecrypt: no key set")
	ErrUnknownVersion = errors.New("simplecrypt: unknown version")
	ErrIntegrity      = errors.New("simplecrypt: integrity check failed")
	ErrTruncated      = errors.New("simplecrypt: ciphertext too short")
)

// Compression selects when the payload is compressed.
type Compression int

const (
	CompressionAuto Compression = iota
	CompressionAlways
	CompressionNever
)

// Protection selects the integrity check prepended to the payload.
type Protection int

const (
	ProtectionChecksum Protection = iota
	ProtectionHash
	ProtectionNone
)

// Cipher encrypts and decrypts with one 64-bit key.
type Cipher struct {
	key         uint64
	parts       [8]byte
	Compression Compression
	Protection  Protection
	rand        io.Reader
}

// New returns a Cipher for key with auto compression and checksum protection.
func New(key uint64) *Cipher {
	c := &Cipher{key: key, rand: rand.Reader}
	for i := range c.parts {
		c.parts[i] = byte(key >> (8 * uint(i)))
	}
	return c
}

// Encrypt returns the raw (not base64) ciphertext of plaintext.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	if c.key == 0 {
		return nil, ErrNoKey
	}

	ba := plaintext
	var flags byte
	switch c.Compression {
	case CompressionAlways:
		z, err := compress(ba)
		if err != nil {
			return nil, err
		}
		ba = z
		flags |= FlagCompression
	case CompressionAuto:
		z, err := compress(ba)
		if err != nil {
			return nil, err
		}
		if len(z) < len(ba) {
			ba = z
			flags |= FlagCompression
		}
	}

	var integrity []byte
	switch c.Protection {
	case ProtectionChecksum:
		flags |= FlagChecksum
		integrity = binary.BigEndian.AppendUint16(nil, crc16X25(ba))
	case ProtectionHash:
		flags |= FlagHash
		sum := sha1.Sum(ba)
		integrity = sum[:]
	}

	var r [1]byte
	if _, err := io.ReadFull(c.rand, r[:]); err != nil {
		return nil, fmt.Errorf("simplecrypt: random: %w", err)
	}

	body := make([]byte, 0, 1+len(integrity)+len(ba))
	body = append(body, r[0])
	body = append(body, integrity...)
	body = append(body, ba...)

	var last byte
	for i := range body {
		body[i] = body[i] ^ c.parts[i%8] ^ last
		last = body[i]
	}

	out := make([]byte, 0, 2+len(body))
	out = append(out, version, flags)
	return append(out, body...), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if c.key == 0 {
		return nil, ErrNoKey
	}
	if len(ciphertext) < 3 {
		return nil, ErrTruncated
	}
	if ciphertext[0] != version {
		return nil, ErrUnknownVersion
	}
	flags := ciphertext[1]

	body := append([]byte(nil), ciphertext[2:]...)
	var last byte
	for i := range body {
		cur := body[i]
		body[i] = body[i] ^ last ^ c.parts[i%8]
		last = cur
	}
	body = body[1:] // random byte

	switch {
	case flags&FlagChecksum != 0:
		if len(body) < 2 {
			return nil, ErrTruncated
		}
		want := binary.BigEndian.Uint16(body[:2])
		body = body[2:]
		if crc16X25(body) != want {
			return nil, ErrIntegrity
		}
	case flags&FlagHash != 0:
		if len(body) < sha1.Size {
			return nil, ErrTruncated
		}
		want := body[:sha1.Size]
		body = body[sha1.Size:]
		sum := sha1.Sum(body)
		if !bytes.Equal(sum[:], want) {
			return nil, ErrIntegrity
		}
	}

	if flags&FlagCompression != 0 {
		return uncompress(body)
	}
	return body, nil
}

// EncryptString encrypts s as UTF-8 and base64-encodes the result.
func (c *Cipher) EncryptString(s string) (string, error) {
	raw, err := c.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecryptString decodes base64 text and decrypts it.
func (c *Cipher) DecryptString(s string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace([]byte(s))))
	if err != nil {
		return "", fmt.Errorf("simplecrypt: base64: %w", err)
	}
	plain, err := c.Decrypt(raw)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// compress produces the length-prefixed zlib stream of the desktop toolkit.
func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(data)))
	buf.Write(n[:])
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("simplecrypt: compress: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("simplecrypt: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("simplecrypt: compress: %w", err)
	}
	return buf.Bytes(), nil
}

func uncompress(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	size := binary.BigEndian.Uint32(data[:4])
	zr, err := zlib.NewReader(bytes.NewReader(data[4:]))
	if err != nil {
		return nil, fmt.Errorf("simplecrypt: uncompress: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("simplecrypt: uncompress: %w", err)
	}
	if uint32(len(out)) != size {
		return nil, ErrIntegrity
	}
	return out, nil
}
