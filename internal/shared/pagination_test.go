package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePage(t *testing.T) {
	page, size := NormalizePage(0, 0)
	require.Equal(t, 1, page)
	require.Equal(t, DefaultPageSize, size)

	_, size = NormalizePage(2, 1000)
	require.Equal(t, MaxPageSize, size)

	require.Equal(t, 40, Offset(3, 20))
}

func TestNewPaginationRoundsUp(t *testing.T) {
	p := NewPagination(1, 20, 41)
	require.Equal(t, 3, p.TotalPages)
	require.Equal(t, 41, p.Total)

	require.Zero(t, NewPagination(1, 20, 0).TotalPages)
}

func TestLockKeysAreScoped(t *testing.T) {
	require.Equal(t, "threeway:po:10:lock", POLockKey(10))
	require.Equal(t, "threeway:exception:7:lock", ExceptionLockKey(7))
}
