package reply

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReply_String(t *testing.T) {
	assert.Equal(t, "sign_out success", Ok("sign_out").String())
	assert.Equal(t, "sign_in success 42", OkWith("sign_in", "42").String())
	assert.Equal(t, "sign_in error Incorrect login or password", Err("sign_in", "Incorrect login or password").String())
}

func TestReply_IsOk(t *testing.T) {
	assert.True(t, Ok("new_user").IsOk())
	assert.True(t, OkWith("sign_in", "1").IsOk())
	assert.False(t, Err("sign_in", "nope").IsOk())
}

func TestProtocolError(t *testing.T) {
	assert.Equal(t, "error: Cannot parse command - frobnicate", string(ProtocolError("frobnicate")))
	assert.Equal(t, "error: Cannot parse command - ", string(ProtocolError("")))
}
