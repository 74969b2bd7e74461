package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash_Stable(t *testing.T) {
	s := Spec{AppHash: "abc", ArgsBlob: []byte(`[1,2]`), KwargsBlob: []byte(`{}`)}
	h1 := Hash(s)
	h2 := Hash(s)
	require.Equal(t, h1, h2)
}

func TestHash_DiffersOnArgs(t *testing.T) {
	base := Spec{AppHash: "abc", ArgsBlob: []byte(`[1]`)}
	other := Spec{AppHash: "abc", ArgsBlob: []byte(`[2]`)}
	require.NotEqual(t, Hash(base), Hash(other))
}

func TestHash_DepOrderIndependent(t *testing.T) {
	a := Spec{AppHash: "abc", Deps: []string{"tsk_1", "tsk_2"}}
	b := Spec{AppHash: "abc", Deps: []string{"tsk_2", "tsk_1"}}
	require.Equal(t, Hash(a), Hash(b))
}

func TestHash_NoFrameCollision(t *testing.T) {
	a := Spec{AppHash: "ab", ArgsBlob: []byte("c")}
	b := Spec{AppHash: "a", ArgsBlob: []byte("bc")}
	require.NotEqual(t, Hash(a), Hash(b))
}

func TestAppHash_Stable(t *testing.T) {
	h1 := AppHash("double", "def double(x): return x*2", nil)
	h2 := AppHash("double", "def double(x): return x*2", nil)
	require.Equal(t, h1, h2)
}

func TestAppHash_DiffersOnSource(t *testing.T) {
	h1 := AppHash("f", "source a", nil)
	h2 := AppHash("f", "source b", nil)
	require.NotEqual(t, h1, h2)
}

func TestNameKey_IgnoresSourceByConstruction(t *testing.T) {
	k1 := NameKey("double", []byte(`[1]`), []byte(`{}`))
	k2 := NameKey("double", []byte(`[1]`), []byte(`{}`))
	require.Equal(t, k1, k2)
}
