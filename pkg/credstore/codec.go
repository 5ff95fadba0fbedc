package credstore

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// codecVersion is written as the first byte of every encoded UserRecord so
// a future format change can be detected on read instead of silently
// misparsed.
const codecVersion byte = 1

// resetPhase tags mirror ResetPhase's discriminant in the binary encoding.
// They are independent of the Go iota order of ResetPhase so the wire
// format does not shift if ResetPhase gains new variants in an unrelated
// position.
const (
	tagNone byte = iota
	tagReset
	tagInitialLogin
	tagLocked
)

// encode serializes a UserRecord into the exact byte layout KV watchers and
// other SNAS processes must agree on: a version byte, length-prefixed
// UTF-8 strings for username and password hash, a discriminant byte plus
// an optional big-endian expiry for the reset phase, a single approval
// byte, and a sorted, length-prefixed list of group names.
//
// This is hand-rolled rather than built on a general serialization library
// because the format itself (exact field order, a variant discriminant
// tied to domain semantics, deterministic group ordering) is the
// contract, not an implementation detail a generic codec would preserve.
func encode(u *UserRecord) ([]byte, error) {
	buf := make([]byte, 0, 128)
	buf = append(buf, codecVersion)
	buf = appendString(buf, u.Username)
	buf = appendString(buf, u.PasswordHash)

	switch p := u.ResetPhase.(type) {
	case PhaseNone:
		buf = append(buf, tagNone)
	case PhaseReset:
		buf = append(buf, tagReset)
		buf = appendUint64(buf, uint64(p.Expiry.Unix()))
	case PhaseInitialLogin:
		buf = append(buf, tagInitialLogin)
		buf = appendUint64(buf, uint64(p.Expiry.Unix()))
	case PhaseLocked:
		buf = append(buf, tagLocked)
	default:
		return nil, fmt.Errorf("credstore: unknown reset phase %T", p)
	}

	if u.NeedsApproval {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	groups := make([]string, len(u.Groups))
	copy(groups, u.Groups)
	sort.Strings(groups)

	if len(groups) > 0xFFFF {
		return nil, fmt.Errorf("credstore: too many groups (%d)", len(groups))
	}
	buf = appendUint16(buf, uint16(len(groups)))
	for _, g := range groups {
		buf = appendString(buf, g)
	}

	return buf, nil
}

// decode is the inverse of encode. It rejects any version it doesn't
// recognize rather than guessing at a compatible layout.
func decode(data []byte) (*UserRecord, error) {
	r := &reader{buf: data}

	version, err := r.byte_()
	if err != nil {
		return nil, err
	}
	if version != codecVersion {
		return nil, fmt.Errorf("credstore: unsupported record version %d", version)
	}

	username, err := r.string_()
	if err != nil {
		return nil, err
	}
	passwordHash, err := r.string_()
	if err != nil {
		return nil, err
	}

	tag, err := r.byte_()
	if err != nil {
		return nil, err
	}

	var phase ResetPhase
	switch tag {
	case tagNone:
		phase = PhaseNone{}
	case tagReset:
		expiry, err := r.uint64_()
		if err != nil {
			return nil, err
		}
		phase = PhaseReset{Expiry: unixTime(expiry)}
	case tagInitialLogin:
		expiry, err := r.uint64_()
		if err != nil {
			return nil, err
		}
		phase = PhaseInitialLogin{Expiry: unixTime(expiry)}
	case tagLocked:
		phase = PhaseLocked{}
	default:
		return nil, fmt.Errorf("credstore: unknown reset phase tag %d", tag)
	}

	approvalByte, err := r.byte_()
	if err != nil {
		return nil, err
	}

	groupCount, err := r.uint16_()
	if err != nil {
		return nil, err
	}
	groups := make([]string, 0, groupCount)
	for i := uint16(0); i < groupCount; i++ {
		g, err := r.string_()
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	if !r.exhausted() {
		return nil, fmt.Errorf("credstore: %d trailing bytes after decoding record", r.remaining())
	}

	return &UserRecord{
		Username:      username,
		PasswordHash:  passwordHash,
		Groups:        groups,
		NeedsApproval: approvalByte != 0,
		ResetPhase:    phase,
	}, nil
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) exhausted() bool {
	return r.pos >= len(r.buf)
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) byte_() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, fmt.Errorf("credstore: unexpected end of record reading byte")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uint16_() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, fmt.Errorf("credstore: unexpected end of record reading uint16")
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2])
	r.pos += 2
	return v, nil
}

func (r *reader) uint64_() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, fmt.Errorf("credstore: unexpected end of record reading uint64")
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) string_() (string, error) {
	n, err := r.uint16_()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.buf) {
		return "", fmt.Errorf("credstore: unexpected end of record reading string")
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}
