package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Format is a wire format for traces.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// FormatForPath picks the format from a file extension: .msgpack and .mp select msgpack,
// anything else JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mp":
		return FormatMsgpack
	default:
		return FormatJSON
	}
}

// Encode writes the trace in the given format.
func Encode(w io.Writer, t *Trace, format Format) error {
	switch format {
	case FormatMsgpack:
		return EncodeMsgpack(w, t)
	case FormatJSON:
		return EncodeJSON(w, t)
	default:
		return fmt.Errorf("trace: unknown format %q", format)
	}
}

// Decode reads and validates a trace in the given format.
func Decode(r io.Reader, format Format) (*Trace, error) {
	switch format {
	case FormatMsgpack:
		return DecodeMsgpack(r)
	case FormatJSON:
		return DecodeJSON(r)
	default:
		return nil, fmt.Errorf("trace: unknown format %q", format)
	}
}

// EncodeJSON writes the trace as indented JSON.
func EncodeJSON(w io.Writer, t *Trace) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("trace: encode json: %w", err)
	}
	return nil
}

// DecodeJSON reads a JSON trace and validates it.
func DecodeJSON(r io.Reader) (*Trace, error) {
	var t Trace
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("trace: decode json: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// EncodeMsgpack writes the trace as msgpack.
func EncodeMsgpack(w io.Writer, t *Trace) error {
	if err := msgpack.NewEncoder(w).Encode(t); err != nil {
		return fmt.Errorf("trace: encode msgpack: %w", err)
	}
	return nil
}

// DecodeMsgpack reads a msgpack trace and validates it.
func DecodeMsgpack(r io.Reader) (*Trace, error) {
	var t Trace
	if err := msgpack.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("trace: decode msgpack: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
