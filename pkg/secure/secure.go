// Package secure provides wrapper types for in-memory secrets that must not
// leak into logs, error messages, or accidental string conversions.
package secure

import "encoding/json"

// String holds a secret value that is redacted by default Go formatting
// verbs and zeroed when Release is called. The zero value is an empty
// secret, not a nil one, so a declared-but-unset String is always safe to
// format and compare.
type String struct {
	b []byte
}

// NewString wraps s as a secret. The caller's copy of s is not modified;
// only the internal copy participates in Release.
func NewString(s string) String {
	return String{b: []byte(s)}
}

// Expose returns the underlying plaintext. Callers must not retain the
// returned string past the point where the secret should be released.
func (s String) Expose() string {
	return string(s.b)
}

// Release zeroes the backing bytes. Safe to call multiple times.
func (s *String) Release() {
	for i := range s.b {
		s.b[i] = 0
	}
	s.b = nil
}

// Equal does a constant-time-agnostic comparison; it is not used for
// credential verification (pkg/security does that with a timing-safe
// comparison), only for things like comparing two tokens by value.
func (s String) Equal(other String) bool {
	return string(s.b) == string(other.b)
}

func (s String) String() string {
	return "[REDACTED]"
}

func (s String) GoString() string {
	return "secure.String{REDACTED}"
}

// MarshalJSON makes String transparent on the wire: it serializes as the
// plain string so request/response payloads round-trip normally, while
// Go's fmt verbs still redact it.
func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Expose())
}

func (s *String) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.b = []byte(raw)
	return nil
}

// Bytes holds secret binary data (e.g. a derived key or raw hash) with the
// same zero-on-release and redacted-formatting behavior as String.
type Bytes struct {
	b []byte
}

func NewBytes(b []byte) Bytes {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Bytes{b: cp}
}

func (s Bytes) Expose() []byte {
	return s.b
}

func (s *Bytes) Release() {
	for i := range s.b {
		s.b[i] = 0
	}
	s.b = nil
}

func (s Bytes) String() string {
	return "[REDACTED]"
}

func (s Bytes) GoString() string {
	return "secure.Bytes{REDACTED}"
}
