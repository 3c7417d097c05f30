// Package sds provides the shared result-code and callback-vtable contract
// used by the btree, cowbtree, lfqueue and hashtrie packages.
package sds

import "fmt"

// Result is the single enumerated result type every public operation in
// this module returns. Two of its values, KeyPresent and KeyNotPresent,
// are both successful outcomes: callers must discriminate them explicitly
// rather than treating "nonzero" as an error.
type Result int

const (
	Success Result = iota
	UnknownError
	NullPointer
	DuplicateKey
	ChecksumFailure
	InvalidNodeID
	InvalidKey
	InvalidValueSize
	InvalidPointer
	InvalidNode
	InvalidKeyOrder
	KeyPresent
	KeyNotPresent
	IncompatibleInstance
	ListExhausted
	InvalidTxn
	TestFailed

	// retry is internal-only and must never be returned from a public
	// function; it exists purely so internal helpers can signal "redo the
	// descent" without overloading a caller-visible value.
	retry
)

var resultNames = [...]string{
	"SUCCESS",
	"UNKNOWN_ERROR",
	"NULL_POINTER",
	"DUPLICATE_KEY",
	"CHECKSUM_FAILURE",
	"INVALID_NODE_ID",
	"INVALID_KEY",
	"INVALID_VALUE_SIZE",
	"INVALID_POINTER",
	"INVALID_NODE",
	"INVALID_KEY_ORDER",
	"KEY_PRESENT",
	"KEY_NOT_PRESENT",
	"INCOMPATIBLE_INSTANCE",
	"LIST_EXHAUSTED",
	"INVALID_TXN",
	"TEST_FAILED",
	"RETRY",
}

func (r Result) String() string {
	if int(r) < 0 || int(r) >= len(resultNames) {
		return fmt.Sprintf("Result(%d)", int(r))
	}
	return resultNames[r]
}

// Error makes Result usable wherever an error is expected, so ordinary
// Go error handling (errors.Is, wrapping with %w) composes with it for the
// genuine failure codes. KeyPresent and KeyNotPresent are success outcomes
// and calling code should never pass them through Error() as a failure
// signal — check them explicitly first.
func (r Result) Error() string {
	return r.String()
}

// Ok reports whether r represents a fully successful, unambiguous outcome.
// KeyPresent/KeyNotPresent are successes but are NOT "Ok" under this
// helper because callers are required to branch on them explicitly; Ok is
// only for the plain Success case.
func (r Result) Ok() bool {
	return r == Success
}
