// Package sechash wraps Argon2id hashing of the client-derived auth string.
// The input is never a raw password: clients submit the output of their own
// slow KDF, and this hash is a second, independent hardening layer on top.
package sechash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/zkvault/zkvault/internal/config"
)

const (
	saltLen = 16
	keyLen  = 32
)

// Hasher hashes and verifies auth strings using Argon2id with tunable costs.
type Hasher struct {
	params config.Argon2Params
}

// New builds a Hasher with the provided cost parameters.
func New(params config.Argon2Params) *Hasher {
	return &Hasher{params: params}
}

// Hash returns a PHC-style Argon2id string:
// $argon2id$v=19$m=65536,t=3,p=4$<salt_b64>$<hash_b64>
func (h *Hasher) Hash(authString string) (string, error) {
	if authString == "" {
		return "", errors.New("auth string is required")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(authString), salt, h.params.TimeCost, h.params.MemoryKiB, h.params.Parallelism, keyLen)
	enc := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.TimeCost,
		h.params.Parallelism,
		enc.EncodeToString(salt),
		enc.EncodeToString(key),
	), nil
}

// Verify recomputes the hash from the stored parameters and compares in
// constant time. A malformed stored hash is a verification failure, never an
// error that escapes to the caller.
func (h *Hasher) Verify(candidate, stored string) bool {
	if candidate == "" || stored == "" {
		return false
	}
	params, salt, want, err := parsePHC(stored)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(candidate), salt, params.TimeCost, params.MemoryKiB, params.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

func parsePHC(s string) (config.Argon2Params, []byte, []byte, error) {
	// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" {
		return config.Argon2Params{}, nil, nil, errors.New("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return config.Argon2Params{}, nil, nil, errors.New("unsupported algorithm")
	}
	ver, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || ver != argon2.Version {
		return config.Argon2Params{}, nil, nil, errors.New("unsupported argon2 version")
	}

	var p config.Argon2Params
	for _, kv := range strings.Split(parts[3], ",") {
		pair := strings.SplitN(kv, "=", 2)
		if len(pair) != 2 {
			return config.Argon2Params{}, nil, nil, errors.New("invalid argon2 parameters")
		}
		switch pair[0] {
		case "m":
			v, err := strconv.ParseUint(pair[1], 10, 32)
			if err != nil {
				return config.Argon2Params{}, nil, nil, errors.New("invalid argon2 memory")
			}
			p.MemoryKiB = uint32(v)
		case "t":
			v, err := strconv.ParseUint(pair[1], 10, 32)
			if err != nil {
				return config.Argon2Params{}, nil, nil, errors.New("invalid argon2 iterations")
			}
			p.TimeCost = uint32(v)
		case "p":
			v, err := strconv.ParseUint(pair[1], 10, 8)
			if err != nil {
				return config.Argon2Params{}, nil, nil, errors.New("invalid argon2 parallelism")
			}
			p.Parallelism = uint8(v)
		default:
			return config.Argon2Params{}, nil, nil, errors.New("unknown argon2 parameter")
		}
	}
	if p.MemoryKiB == 0 || p.TimeCost == 0 || p.Parallelism == 0 {
		return config.Argon2Params{}, nil, nil, errors.New("incomplete argon2 parameters")
	}

	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(parts[4])
	if err != nil {
		return config.Argon2Params{}, nil, nil, errors.New("invalid argon2 salt")
	}
	hash, err := enc.DecodeString(parts[5])
	if err != nil {
		return config.Argon2Params{}, nil, nil, errors.New("invalid argon2 hash")
	}
	if len(hash) < 16 {
		return config.Argon2Params{}, nil, nil, errors.New("argon2 hash too short")
	}
	return p, salt, hash, nil
}
