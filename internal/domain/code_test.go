package domain_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"popsies-quiz-service/internal/domain"
)

// stepSource yields the same alphabet index for every character of one code,
// then moves to the next index: AAAAAA, BBBBBB, CCCCCC, ...
type stepSource struct {
	length int
	calls  int
}

func (s *stepSource) Intn(n int) int {
	v := (s.calls / s.length) % n
	s.calls++
	return v
}

func TestAllocateSkipsTakenCodes(t *testing.T) {
	alloc := &domain.CodeAllocator{Length: 6, Attempts: 10, Rand: &stepSource{length: 6}}
	var asked []string
	code, err := alloc.Allocate(context.Background(), func(_ context.Context, code string) (bool, error) {
		asked = append(asked, code)
		return len(asked) <= 3, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"AAAAAA", "BBBBBB", "CCCCCC", "DDDDDD"}, asked)
	require.Equal(t, "DDDDDD", code)
}

func TestAllocateExhaustsBudget(t *testing.T) {
	alloc := &domain.CodeAllocator{Length: 4, Attempts: 10, Rand: &stepSource{length: 4}}
	calls := 0
	_, err := alloc.Allocate(context.Background(), func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	})
	require.ErrorIs(t, err, domain.ErrCodeSpaceExhausted)
	require.Equal(t, domain.KindConflict, domain.KindOf(err))
	require.Equal(t, 10, calls)
}

func TestAllocateReportsOracleFailure(t *testing.T) {
	alloc := &domain.CodeAllocator{Rand: domain.NewSeededSource(1)}
	boom := errors.New("redis down")
	_, err := alloc.Allocate(context.Background(), func(context.Context, string) (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, domain.KindInfrastructure, domain.KindOf(err))
}

func TestGeneratedCodesUseUnambiguousAlphabet(t *testing.T) {
	alloc, err := domain.NewCodeAllocator(8, 3)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		code := alloc.Generate()
		require.Len(t, code, 8)
		require.False(t, strings.ContainsAny(code, "0O1I"), code)
	}
}

func TestAllocateHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	alloc := &domain.CodeAllocator{Rand: domain.NewSeededSource(1)}
	_, err := alloc.Allocate(ctx, func(context.Context, string) (bool, error) { return false, nil })
	require.ErrorIs(t, err, context.Canceled)
}
