// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"encoding/json"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func configuration(actualFrom uint64, payload string) *Configuration {
	return &Configuration{
		ActualFrom: actualFrom,
		Services: map[string]json.RawMessage{
			"svc": json.RawMessage(payload),
		},
	}
}

func TestHeightAndBlockHashes(t *testing.T) {
	require := require.New(t)

	s := New(memdb.New())
	height, err := s.Height()
	require.NoError(err)
	require.Zero(height)

	blkID := ids.GenerateTestID()
	require.NoError(s.PutBlockHash(7, blkID))
	require.NoError(s.SetHeight(7))

	height, err = s.Height()
	require.NoError(err)
	require.Equal(uint64(7), height)

	got, err := s.BlockHash(7)
	require.NoError(err)
	require.Equal(blkID, got)

	_, err = s.BlockHash(8)
	require.ErrorIs(err, ErrUnknownBlockHash)
}

func TestConfigurationVersions(t *testing.T) {
	require := require.New(t)

	s := New(memdb.New())
	_, err := s.ActualConfiguration()
	require.ErrorIs(err, ErrNoConfiguration)

	require.NoError(s.CommitConfiguration(configuration(0, `{"v":0}`)))
	require.NoError(s.SetHeight(5))

	actual, err := s.ActualConfiguration()
	require.NoError(err)
	require.Zero(actual.ActualFrom)
	following, err := s.FollowingConfiguration()
	require.NoError(err)
	require.Nil(following)
	previous, err := s.PreviousConfiguration()
	require.NoError(err)
	require.Nil(previous)

	// activation must be in the future
	require.ErrorIs(s.CommitConfiguration(configuration(5, `{}`)), ErrStaleActivation)

	require.NoError(s.CommitConfiguration(configuration(16, `{"v":1}`)))
	require.ErrorIs(s.CommitConfiguration(configuration(20, `{}`)), ErrFollowingExists)

	following, err = s.FollowingConfiguration()
	require.NoError(err)
	require.Equal(uint64(16), following.ActualFrom)
	payload, ok := following.Service("svc")
	require.True(ok)
	require.JSONEq(`{"v":1}`, string(payload))

	require.NoError(s.SetHeight(16))
	actual, err = s.ActualConfiguration()
	require.NoError(err)
	require.Equal(uint64(16), actual.ActualFrom)
	previous, err = s.PreviousConfiguration()
	require.NoError(err)
	require.Zero(previous.ActualFrom)
	following, err = s.FollowingConfiguration()
	require.NoError(err)
	require.Nil(following)

	byHeight, err := s.ConfigurationByHeight(15)
	require.NoError(err)
	require.Zero(byHeight.ActualFrom)

	_, ok = byHeight.Service("other")
	require.False(ok)
}

func TestConfigurationIsolatedByView(t *testing.T) {
	require := require.New(t)

	base := memdb.New()
	require.NoError(New(base).CommitConfiguration(configuration(0, `{}`)))

	view := versiondb.New(base)
	s := New(view)
	require.NoError(s.SetHeight(1))
	require.NoError(s.CommitConfiguration(configuration(10, `{}`)))

	following, err := New(base).FollowingConfiguration()
	require.NoError(err)
	require.Nil(following)

	require.NoError(view.Commit())
	following, err = New(base).FollowingConfiguration()
	require.NoError(err)
	require.Equal(uint64(10), following.ActualFrom)
}
