// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorCodeString(t *testing.T) {
	require.Equal(t, "ErrVoteBadSignature", ErrVoteBadSignature.String())
	require.Contains(t, ErrorCode(9999).String(), "Unknown ErrorCode")
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying failure")
	err := newError(ErrParse, "could not parse message", cause)

	require.Equal(t, "could not parse message: underlying failure", err.Error())
	require.True(t, errors.Is(err, cause))
}

func TestErrorCodeIsMalicious(t *testing.T) {
	require.True(t, ErrVoteBadSignature.IsMalicious())
	require.False(t, ErrVoteStale.IsMalicious())
	require.False(t, ErrVoteUnknownTarget.IsMalicious())
}
