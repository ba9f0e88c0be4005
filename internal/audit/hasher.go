package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Hasher computa el hash de contenido de un registro.
// Debe ser determinístico y resistente a colisiones.
type Hasher interface {
	Name() string
	Sum(data []byte) string
}

type sha256Hasher struct{}

func (sha256Hasher) Name() string { return "sha256" }

func (sha256Hasher) Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type blake2bHasher struct{}

func (blake2bHasher) Name() string { return "blake2b" }

func (blake2bHasher) Sum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256 retorna el hasher por defecto.
func SHA256() Hasher { return sha256Hasher{} }

// BLAKE2b retorna el hasher alternativo basado en BLAKE2b-256.
func BLAKE2b() Hasher { return blake2bHasher{} }

// NewHasher resuelve un hasher por nombre ("" = sha256).
func NewHasher(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sha256":
		return sha256Hasher{}, nil
	case "blake2b":
		return blake2bHasher{}, nil
	default:
		return nil, fmt.Errorf("audit: unknown hasher %q", name)
	}
}
