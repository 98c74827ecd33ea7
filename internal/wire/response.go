package wire

import (
	"io"

	"github.com/aleksandarhr/kvs/internal/kvserror"
)

// Response tags.
const (
	tagOkValue    byte = iota // ResultWithPossibleValue::Ok
	tagErrValue               // ResultWithPossibleValue::Err
	tagOkNoValue              // ResultWithNoResponse::Ok
	tagErrNoValue             // ResultWithNoResponse::Err
)

// CommandResponse is a tagged union of the two response shapes: a Get
// response that may carry a value, and a Set/Remove response that never
// does. This mirrors the Rust reference's ResultWithPossibleValue /
// ResultWithNoResponse split while keeping a single Go type for callers
// to handle.
type CommandResponse struct {
	Tag      byte
	HasValue bool // only meaningful when Tag == tagOkValue
	Value    string
	ErrMsg   string
}

// OkValue builds a successful Get response.
func OkValue(value string, present bool) CommandResponse {
	return CommandResponse{Tag: tagOkValue, HasValue: present, Value: value}
}

// ErrValue builds a failed Get response.
func ErrValue(msg string) CommandResponse {
	return CommandResponse{Tag: tagErrValue, ErrMsg: msg}
}

// OkNoValue builds a successful Set/Remove response.
func OkNoValue() CommandResponse {
	return CommandResponse{Tag: tagOkNoValue}
}

// ErrNoValue builds a failed Set/Remove response.
func ErrNoValue(msg string) CommandResponse {
	return CommandResponse{Tag: tagErrNoValue, ErrMsg: msg}
}

// IsErr reports whether this response carries an error, mirroring the
// reference's CommandResponse::is_err.
func (r CommandResponse) IsErr() bool {
	return r.Tag == tagErrValue || r.Tag == tagErrNoValue
}

// EncodeResponse writes one self-delimiting CommandResponse record to w.
func EncodeResponse(w io.Writer, r CommandResponse) error {
	if _, err := w.Write([]byte{r.Tag}); err != nil {
		return kvserror.Wrap(kvserror.ErrIO, "write response tag")
	}
	switch r.Tag {
	case tagOkValue:
		present := byte(0)
		if r.HasValue {
			present = 1
		}
		if _, err := w.Write([]byte{present}); err != nil {
			return kvserror.Wrap(kvserror.ErrIO, "write response presence flag")
		}
		if r.HasValue {
			if _, err := writeString(w, r.Value); err != nil {
				return kvserror.Wrap(kvserror.ErrIO, "write response value")
			}
		}
	case tagErrValue, tagErrNoValue:
		if _, err := writeString(w, r.ErrMsg); err != nil {
			return kvserror.Wrap(kvserror.ErrIO, "write response error message")
		}
	case tagOkNoValue:
		// no payload
	default:
		return kvserror.Wrapf(kvserror.ErrSerialization, "unknown response tag %d", r.Tag)
	}
	return nil
}

// DecodeResponse reads exactly one CommandResponse record from r.
func DecodeResponse(r io.Reader) (CommandResponse, error) {
	tagBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, tagBuf); err != nil {
		return CommandResponse{}, kvserror.Wrap(kvserror.ErrSerialization, "truncated response tag")
	}
	resp := CommandResponse{Tag: tagBuf[0]}
	switch resp.Tag {
	case tagOkValue:
		presentBuf := make([]byte, 1)
		if _, err := io.ReadFull(r, presentBuf); err != nil {
			return CommandResponse{}, kvserror.Wrap(kvserror.ErrSerialization, "truncated response presence flag")
		}
		resp.HasValue = presentBuf[0] != 0
		if resp.HasValue {
			value, _, err := readString(r)
			if err != nil {
				return CommandResponse{}, kvserror.Wrap(kvserror.ErrSerialization, "truncated response value")
			}
			resp.Value = value
		}
	case tagErrValue, tagErrNoValue:
		msg, _, err := readString(r)
		if err != nil {
			return CommandResponse{}, kvserror.Wrap(kvserror.ErrSerialization, "truncated response error message")
		}
		resp.ErrMsg = msg
	case tagOkNoValue:
		// no payload
	default:
		return CommandResponse{}, kvserror.Wrapf(kvserror.ErrSerialization, "unknown response tag %d", resp.Tag)
	}
	return resp, nil
}
