package secure

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString_ExposeRoundTrip(t *testing.T) {
	s := NewString("hunter2")
	assert.Equal(t, "hunter2", s.Expose())
}

func TestString_RedactedFormatting(t *testing.T) {
	s := NewString("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "secure.String{REDACTED}", s.GoString())
	assert.NotContains(t, s.String(), "hunter2")
}

func TestString_Release(t *testing.T) {
	s := NewString("hunter2")
	s.Release()
	assert.Empty(t, s.Expose())
}

func TestString_JSONRoundTrip(t *testing.T) {
	type payload struct {
		Password String `json:"password"`
	}
	p := payload{Password: NewString("hunter2")}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"password":"hunter2"}`, string(data))

	var out payload
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "hunter2", out.Password.Expose())
}

func TestString_Equal(t *testing.T) {
	a := NewString("same")
	b := NewString("same")
	c := NewString("different")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestBytes_RedactedFormatting(t *testing.T) {
	b := NewBytes([]byte{0x01, 0x02, 0x03})
	assert.Equal(t, "[REDACTED]", b.String())
	b.Release()
	assert.Empty(t, b.Expose())
}
