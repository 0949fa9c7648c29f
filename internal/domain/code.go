package domain

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
)

const (
	// CodeAlphabet leaves out 0, O, 1 and I so codes can be read aloud and typed.
	CodeAlphabet        = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	DefaultCodeLength   = 6
	DefaultCodeAttempts = 10
)

// RandomSource is the subset of math/rand used for code generation.
type RandomSource interface {
	Intn(n int) int
}

// CodeInUseFunc reports whether a live session already holds code.
type CodeInUseFunc func(ctx context.Context, code string) (bool, error)

// CodeAllocator generates join codes and retries against a uniqueness oracle.
// The oracle only narrows the race; the store must still reject duplicates on insert.
type CodeAllocator struct {
	Length   int
	Attempts int
	Rand     RandomSource
}

// NewCodeAllocator returns an allocator with a crypto-seeded source.
func NewCodeAllocator(length, attempts int) (*CodeAllocator, error) {
	src, err := NewLockedSource()
	if err != nil {
		return nil, err
	}
	return &CodeAllocator{Length: length, Attempts: attempts, Rand: src}, nil
}

// Generate returns one candidate code without consulting the oracle.
func (a *CodeAllocator) Generate() string {
	length := a.Length
	if length <= 0 {
		length = DefaultCodeLength
	}
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = CodeAlphabet[a.Rand.Intn(len(CodeAlphabet))]
	}
	return string(buf)
}

// Allocate draws candidates until inUse reports one free or the attempt budget runs out.
func (a *CodeAllocator) Allocate(ctx context.Context, inUse CodeInUseFunc) (string, error) {
	attempts := a.Attempts
	if attempts <= 0 {
		attempts = DefaultCodeAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code := a.Generate()
		taken, err := inUse(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check join code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// LockedSource makes a math/rand generator safe for concurrent use.
type LockedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewLockedSource seeds a generator from crypto/rand.
func NewLockedSource() (*LockedSource, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return NewSeededSource(int64(binary.LittleEndian.Uint64(b[:]))), nil
}

// NewSeededSource returns a deterministic source, mostly for tests.
func NewSeededSource(seed int64) *LockedSource {
	return &LockedSource{rnd: rand.New(rand.NewSource(seed))}
}

func (s *LockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}

// Int63n is used for TTL jitter.
func (s *LockedSource) Int63n(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Int63n(n)
}
