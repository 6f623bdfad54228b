package transfer

import "strings"

// Type is the direction of a transfer relative to the local store.
type Type int

const (
	TypeUnknown Type = iota
	TypeUpload
	TypeDownload
)

// String returns the label of the transfer type.
func (t Type) String() string {
	switch t {
	case TypeUpload:
		return "upload"
	case TypeDownload:
		return "download"
	default:
		return "unknown"
	}
}

// Code returns the persisted integer code of the type.
func (t Type) Code() int {
	return int(t)
}

// TypeFromCode decodes a persisted type code, mapping invalid codes to
// TypeUnknown.
func TypeFromCode(code int) Type {
	switch Type(code) {
	case TypeUpload, TypeDownload:
		return Type(code)
	default:
		return TypeUnknown
	}
}

// ParseType parses "upload" or "download" (case-insensitive).
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(s) {
	case "upload":
		return TypeUpload, true
	case "download":
		return TypeDownload, true
	default:
		return TypeUnknown, false
	}
}
