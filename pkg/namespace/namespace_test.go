package namespace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequiresSignature(t *testing.T) {
	require.False(t, Default.RequiresSignature())
	require.True(t, UserGroups.RequiresSignature())
	require.True(t, GroupMessages.RequiresSignature())
}

func TestIsConfig(t *testing.T) {
	require.True(t, UserGroups.IsConfig())
	require.True(t, GroupKeys.IsConfig())
	require.False(t, Default.IsConfig())
	require.False(t, GroupMessages.IsConfig())
}

func TestString_UnknownNamespace(t *testing.T) {
	require.Equal(t, "namespace(42)", Namespace(42).String())
}

func TestGroupAll_KeysFirst(t *testing.T) {
	require.Equal(t, GroupKeys, GroupAll[0])
}
