package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequiresType(t *testing.T) {
	_, err := Decode([]byte(`{"req_id":"1"}`))
	assert.ErrorContains(t, err, "missing type")

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestFileFrameOnTheWire(t *testing.T) {
	b, err := Encode(Frame{Type: TypeFile, ReqID: "r", To: 2, File: &FilePayload{Name: "a", Data: []byte("hi")}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"file","req_id":"r","to":2,"file":{"name":"a","data":"aGk="}}`, string(b))

	f, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), f.File.Data)
}

func TestErrorReply(t *testing.T) {
	assert.Equal(t, Frame{Type: TypeError, ReqID: "7", Error: "nope"}, ErrorReply("7", "nope"))
}

func TestHasMember(t *testing.T) {
	c := Chat{Members: []int{1, 3}}
	assert.True(t, c.HasMember(3))
	assert.False(t, c.HasMember(2))
}
