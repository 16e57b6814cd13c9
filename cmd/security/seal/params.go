package seal

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Params controls Argon2id key derivation cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
}

// DefaultParams returns a baseline suitable for an interactive CLI that
// derives the key once per process.
func DefaultParams() Params {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Params{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
		SaltLength:  16,
	}
}

// ParamsFromEnv loads params from environment variables.
//
// Env surface:
// - AFFITTO_SEAL_MEMORY_KIB
// - AFFITTO_SEAL_ITERATIONS
// - AFFITTO_SEAL_PARALLELISM
// - AFFITTO_SEAL_SALT_LEN
func ParamsFromEnv() (Params, error) {
	p := DefaultParams()

	if v, ok := os.LookupEnv("AFFITTO_SEAL_MEMORY_KIB"); ok {
		u, err := atou32(v, 8*1024, 1024*1024) // 8 MiB .. 1 GiB
		if err != nil {
			return Params{}, fmt.Errorf("AFFITTO_SEAL_MEMORY_KIB: %w", err)
		}
		p.MemoryKiB = u
	}

	if v, ok := os.LookupEnv("AFFITTO_SEAL_ITERATIONS"); ok {
		u, err := atou32(v, 1, 20)
		if err != nil {
			return Params{}, fmt.Errorf("AFFITTO_SEAL_ITERATIONS: %w", err)
		}
		p.Iterations = u
	}

	if v, ok := os.LookupEnv("AFFITTO_SEAL_PARALLELISM"); ok {
		u, err := atou32(v, 1, 64)
		if err != nil {
			return Params{}, fmt.Errorf("AFFITTO_SEAL_PARALLELISM: %w", err)
		}
		par, err := u32ToU8(u)
		if err != nil {
			return Params{}, fmt.Errorf("AFFITTO_SEAL_PARALLELISM: %w", err)
		}
		p.Parallelism = par
	}

	if v, ok := os.LookupEnv("AFFITTO_SEAL_SALT_LEN"); ok {
		u, err := atou32(v, 8, 64)
		if err != nil {
			return Params{}, fmt.Errorf("AFFITTO_SEAL_SALT_LEN: %w", err)
		}
		p.SaltLength = u
	}

	return p, nil
}

func (p Params) validate() error {
	if p.MemoryKiB == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return fmt.Errorf("seal: argon2 params must be positive")
	}
	if p.SaltLength < 8 {
		return fmt.Errorf("seal: salt length %d below minimum 8", p.SaltLength)
	}
	return nil
}

func atou32(s string, minVal, maxVal uint32) (uint32, error) {
	s = strings.TrimSpace(s)
	u64, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}

	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}

func u32ToU8(u uint32) (uint8, error) {
	if u > math.MaxUint8 {
		return 0, fmt.Errorf("out of range [0..%d]", math.MaxUint8)
	}
	return uint8(u), nil
}
