package codec

import "fmt"

// DecodeError reports malformed or truncated recording data.
type DecodeError struct {
	Offset int // byte offset, -1 when unknown
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode recording: " + e.Reason
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports frames that cannot be encoded.
type EncodeError struct {
	Index int // offending frame, -1 for the whole sequence
	Err   error
}

func (e *EncodeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("encode recording: %v", e.Err)
	}
	return fmt.Sprintf("encode recording: frame %d: %v", e.Index, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
