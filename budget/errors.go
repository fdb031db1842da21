// Copyright (c) 2014 Conformal Systems LLC <info@conformal.com>
// Copyright (c) 2024 The budgetd developers
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that the above
// copyright notice and this permission notice appear in all copies.

package budget

import "fmt"

// ErrorCode identifies a kind of error.
type ErrorCode int

const (
	// ErrParse indicates a network message failed to deserialize.
	ErrParse ErrorCode = iota

	// ErrCollateralNotFound indicates the collateral transaction does
	// not exist on the chain the index knows about.
	ErrCollateralNotFound

	// ErrCollateralUnconfirmed indicates the collateral transaction has
	// not yet been mined into a block.
	ErrCollateralUnconfirmed

	// ErrCollateralNotActiveChain indicates the collateral transaction's
	// block is not part of the active chain.
	ErrCollateralNotActiveChain

	// ErrCollateralMalformed indicates an output of the collateral
	// transaction is neither a normal payment script nor an unspendable
	// binding output.
	ErrCollateralMalformed

	// ErrCollateralBindingMismatch indicates no unspendable output
	// commits to the expected binding hash.
	ErrCollateralBindingMismatch

	// ErrCollateralUnderpaid indicates the binding output's value is
	// below the required fee.
	ErrCollateralUnderpaid

	// ErrCollateralInsufficientDepth indicates the collateral has not
	// yet accrued the required confirmation depth.
	ErrCollateralInsufficientDepth

	// ErrWellFormedName indicates a proposal or finalized-budget name is
	// empty or exceeds the maximum length.
	ErrWellFormedName

	// ErrWellFormedURL indicates a proposal URL is empty or exceeds the
	// maximum length.
	ErrWellFormedURL

	// ErrWellFormedAmount indicates a requested or total amount is out
	// of the allowed range.
	ErrWellFormedAmount

	// ErrWellFormedRange indicates a block-start/block-end pair is
	// inconsistent with the cycle grid.
	ErrWellFormedRange

	// ErrWellFormedPayee indicates the payee script is multisig,
	// unparseable, or otherwise not a valid destination.
	ErrWellFormedPayee

	// ErrWellFormedPayments indicates a finalized budget's payment list
	// is empty or too long.
	ErrWellFormedPayments

	// ErrVoteUnknownTarget indicates a vote references a proposal or
	// finalized budget that is not yet known locally.
	ErrVoteUnknownTarget

	// ErrVoteUnknownVoter indicates the voter outpoint does not resolve
	// to a known masternode.
	ErrVoteUnknownVoter

	// ErrVoteBadSignature indicates signature verification failed.
	ErrVoteBadSignature

	// ErrVoteStale indicates the vote is older than one already on file
	// for this voter and target.
	ErrVoteStale

	// ErrVoteTooFast indicates the vote arrived sooner than
	// BudgetVoteUpdateMin after the stored vote from the same voter.
	ErrVoteTooFast

	// ErrVoteTooFuture indicates the vote's timestamp is more than an
	// hour ahead of the local clock.
	ErrVoteTooFuture

	// ErrDuplicate indicates the proposal or finalized budget is already
	// present in the store.
	ErrDuplicate

	// ErrAlreadySeen indicates the vote hash has already been processed.
	ErrAlreadySeen

	// ErrSyncRequestRepeated indicates a peer sent a second full
	// BUDGETVOTESYNC request after already having one fulfilled.
	ErrSyncRequestRepeated

	lastErrorCode
)

var errorCodeStrings = map[ErrorCode]string{
	ErrParse:                      "ErrParse",
	ErrCollateralNotFound:         "ErrCollateralNotFound",
	ErrCollateralUnconfirmed:      "ErrCollateralUnconfirmed",
	ErrCollateralNotActiveChain:   "ErrCollateralNotActiveChain",
	ErrCollateralMalformed:        "ErrCollateralMalformed",
	ErrCollateralBindingMismatch:  "ErrCollateralBindingMismatch",
	ErrCollateralUnderpaid:        "ErrCollateralUnderpaid",
	ErrCollateralInsufficientDepth: "ErrCollateralInsufficientDepth",
	ErrWellFormedName:             "ErrWellFormedName",
	ErrWellFormedURL:              "ErrWellFormedURL",
	ErrWellFormedAmount:           "ErrWellFormedAmount",
	ErrWellFormedRange:            "ErrWellFormedRange",
	ErrWellFormedPayee:            "ErrWellFormedPayee",
	ErrWellFormedPayments:         "ErrWellFormedPayments",
	ErrVoteUnknownTarget:          "ErrVoteUnknownTarget",
	ErrVoteUnknownVoter:           "ErrVoteUnknownVoter",
	ErrVoteBadSignature:           "ErrVoteBadSignature",
	ErrVoteStale:                  "ErrVoteStale",
	ErrVoteTooFast:                "ErrVoteTooFast",
	ErrVoteTooFuture:              "ErrVoteTooFuture",
	ErrDuplicate:                  "ErrDuplicate",
	ErrAlreadySeen:                "ErrAlreadySeen",
	ErrSyncRequestRepeated:        "ErrSyncRequestRepeated",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error is a typed error for all errors arising from budget governance
// processing. Every one of them is local and non-fatal to the host
// process: the caller rejects the triggering message and, for errors
// that indicate malice, scores the sending peer.
type Error struct {
	ErrorCode   ErrorCode
	Description string
	Err         error
}

// Error satisfies the error interface.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e Error) Unwrap() error {
	return e.Err
}

func newError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}

// IsMalicious reports whether an error of this kind should cost the
// sending peer misbehavior score: a bad signature or a repeated abusive
// sync request, never a merely-not-yet-known target or a stale vote.
func (c ErrorCode) IsMalicious() bool {
	switch c {
	case ErrVoteBadSignature, ErrSyncRequestRepeated:
		return true
	default:
		return false
	}
}
