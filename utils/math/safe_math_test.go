// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package math

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	require := require.New(t)

	sum, err := Add[uint64](1, 2)
	require.NoError(err)
	require.Equal(uint64(3), sum)

	_, err = Add[uint64](math.MaxUint64, 1)
	require.ErrorIs(err, ErrOverflow)
}

func TestSub(t *testing.T) {
	require := require.New(t)

	diff, err := Sub[uint64](5, 2)
	require.NoError(err)
	require.Equal(uint64(3), diff)

	_, err = Sub[uint64](2, 5)
	require.ErrorIs(err, ErrUnderflow)
}

func TestMul(t *testing.T) {
	require := require.New(t)

	prod, err := Mul[uint64](250, 10)
	require.NoError(err)
	require.Equal(uint64(2500), prod)

	_, err = Mul[uint64](math.MaxUint64, 2)
	require.ErrorIs(err, ErrOverflow)
}

func TestSum(t *testing.T) {
	require := require.New(t)

	total, err := Sum[uint64](70000, 50000, 1)
	require.NoError(err)
	require.Equal(uint64(120001), total)

	total, err = Sum[uint64]()
	require.NoError(err)
	require.Zero(total)

	_, err = Sum[uint64](math.MaxUint64, 1)
	require.ErrorIs(err, ErrOverflow)
}

func TestDivCeil(t *testing.T) {
	require := require.New(t)

	require.Equal(uint64(2), DivCeil[uint64](8, 4))
	require.Equal(uint64(3), DivCeil[uint64](9, 4))
	require.Equal(uint64(0), DivCeil[uint64](0, 4))
}
