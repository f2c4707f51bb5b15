package core

import "errors"

// Sentinel errors for every named error code in the protocol. Handlers
// return these directly (or wrapped with fmt.Errorf("...: %w", err)); the
// host ledger ABI boundary maps them to a stable numeric code via
// ErrorCode, since a Go error value cannot cross the transaction log.
var (
	// Spool state.
	ErrUnexpectedState = errors.New("spoolchain: unexpected state")
	ErrWriteFailed      = errors.New("spoolchain: write failed")
	ErrSpoolTooLong     = errors.New("spoolchain: spool too long")
	ErrInsufficientRent = errors.New("spoolchain: insufficient rent")

	// Solution.
	ErrSolutionInvalid    = errors.New("spoolchain: solution invalid")
	ErrUnexpectedSpool    = errors.New("spoolchain: unexpected spool")
	ErrSolutionTooEasy    = errors.New("spoolchain: solution too easy")
	ErrSolutionTooEarly   = errors.New("spoolchain: solution too early")
	ErrClaimTooLarge      = errors.New("spoolchain: claim too large")
	ErrCommitmentMismatch = errors.New("spoolchain: commitment mismatch")

	// Reel.
	ErrReelPackFailed     = errors.New("spoolchain: reel pack failed")
	ErrReelUnpackFailed   = errors.New("spoolchain: reel unpack failed")
	ErrReelTooManySpools  = errors.New("spoolchain: reel too many spools")
	ErrReelCommitFailed   = errors.New("spoolchain: reel commit failed")

	// Store (off-ledger, but the codes share this table for symmetry with
	// the on-ledger taxonomy in spec §7).
	ErrSpoolNotFound            = errors.New("spoolchain: spool not found")
	ErrSegmentNotFoundForAddr   = errors.New("spoolchain: segment not found for address")
	ErrInvalidSegmentKey        = errors.New("spoolchain: invalid segment key")
	ErrInvalidPubkey            = errors.New("spoolchain: invalid pubkey")
	ErrIO                       = errors.New("spoolchain: io error")
)

// ErrorCode is the numeric instruction-error code surfaced to the host
// ledger when a handler aborts a transaction. Zero is reserved for success.
type ErrorCode uint32

const (
	CodeOK ErrorCode = iota
	CodeUnexpectedState
	CodeWriteFailed
	CodeSpoolTooLong
	CodeInsufficientRent
	CodeSolutionInvalid
	CodeUnexpectedSpool
	CodeSolutionTooEasy
	CodeSolutionTooEarly
	CodeClaimTooLarge
	CodeCommitmentMismatch
	CodeReelPackFailed
	CodeReelUnpackFailed
	CodeReelTooManySpools
	CodeReelCommitFailed
	CodeSpoolNotFound
	CodeSegmentNotFoundForAddress
	CodeInvalidSegmentKey
	CodeInvalidPubkey
	CodeIOError
	codeUnknown
)

var errorCodes = map[error]ErrorCode{
	ErrUnexpectedState:       CodeUnexpectedState,
	ErrWriteFailed:           CodeWriteFailed,
	ErrSpoolTooLong:          CodeSpoolTooLong,
	ErrInsufficientRent:      CodeInsufficientRent,
	ErrSolutionInvalid:       CodeSolutionInvalid,
	ErrUnexpectedSpool:       CodeUnexpectedSpool,
	ErrSolutionTooEasy:       CodeSolutionTooEasy,
	ErrSolutionTooEarly:      CodeSolutionTooEarly,
	ErrClaimTooLarge:         CodeClaimTooLarge,
	ErrCommitmentMismatch:    CodeCommitmentMismatch,
	ErrReelPackFailed:        CodeReelPackFailed,
	ErrReelUnpackFailed:      CodeReelUnpackFailed,
	ErrReelTooManySpools:     CodeReelTooManySpools,
	ErrReelCommitFailed:      CodeReelCommitFailed,
	ErrSpoolNotFound:         CodeSpoolNotFound,
	ErrSegmentNotFoundForAddr: CodeSegmentNotFoundForAddress,
	ErrInvalidSegmentKey:     CodeInvalidSegmentKey,
	ErrInvalidPubkey:         CodeInvalidPubkey,
	ErrIO:                    CodeIOError,
}

// ErrorCodeOf maps a (possibly wrapped) sentinel error to its stable
// numeric instruction-error code. Unknown errors map to codeUnknown so
// callers can distinguish "no error" from "error we don't have a code for".
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	for sentinel, code := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return codeUnknown
}
