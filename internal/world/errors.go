package world

import (
	"errors"
	"fmt"

	"github.com/roach88/anchor/internal/ir"
)

// DiffErrorCode categorizes synchronization protocol errors.
type DiffErrorCode string

const (
	// ErrCodeMissingParameter indicates the request carried no checksum.
	ErrCodeMissingParameter DiffErrorCode = "MISSING_PARAMETER"

	// ErrCodeParseError indicates the checksum parameter was not valid hex.
	ErrCodeParseError DiffErrorCode = "PARSE_ERROR"

	// ErrCodeUnknownChecksum indicates the checksum never named a state.
	ErrCodeUnknownChecksum DiffErrorCode = "UNKNOWN_CHECKSUM"

	// ErrCodeChecksumTooOld indicates the checksum fell out of the ring.
	ErrCodeChecksumTooOld DiffErrorCode = "CHECKSUM_TOO_OLD"
)

// DiffError is a structured rejection of a diff request.
type DiffError struct {
	Code     DiffErrorCode
	Checksum ir.Checksum
	Message  string
}

// Error implements the error interface.
func (e *DiffError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsChecksumTooOld returns true if err reports an evicted checksum.
// Uses errors.As to handle wrapped errors.
func IsChecksumTooOld(err error) bool {
	var de *DiffError
	if errors.As(err, &de) {
		return de.Code == ErrCodeChecksumTooOld
	}
	return false
}

// IsUnknownChecksum returns true if err reports a checksum that never existed.
// Uses errors.As to handle wrapped errors.
func IsUnknownChecksum(err error) bool {
	var de *DiffError
	if errors.As(err, &de) {
		return de.Code == ErrCodeUnknownChecksum
	}
	return false
}

// ErrorCode extracts the DiffErrorCode from err, or "" if err is not a DiffError.
func ErrorCode(err error) DiffErrorCode {
	var de *DiffError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// NewMissingParameterError creates a DiffError for an absent checksum.
func NewMissingParameterError(name string) *DiffError {
	return &DiffError{
		Code:    ErrCodeMissingParameter,
		Message: fmt.Sprintf("missing %q parameter", name),
	}
}

// NewParseError creates a DiffError for an unparseable checksum.
func NewParseError(raw string, err error) *DiffError {
	return &DiffError{
		Code:    ErrCodeParseError,
		Message: fmt.Sprintf("cannot parse checksum %q: %v", raw, err),
	}
}

func newUnknownChecksumError(c ir.Checksum) *DiffError {
	return &DiffError{
		Code:     ErrCodeUnknownChecksum,
		Checksum: c,
		Message:  fmt.Sprintf("checksum %s does not name any state", c),
	}
}

func newChecksumTooOldError(c ir.Checksum, reason string) *DiffError {
	return &DiffError{
		Code:     ErrCodeChecksumTooOld,
		Checksum: c,
		Message:  fmt.Sprintf("checksum %s is no longer diffable: %s", c, reason),
	}
}

// ParseChecksumParam turns a raw request parameter into a checksum,
// reporting MISSING_PARAMETER or PARSE_ERROR.
func ParseChecksumParam(name, raw string) (ir.Checksum, error) {
	if raw == "" {
		return 0, NewMissingParameterError(name)
	}
	c, err := ir.ParseChecksum(raw)
	if err != nil {
		return 0, NewParseError(raw, err)
	}
	return c, nil
}
