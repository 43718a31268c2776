package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidProjectKey(t *testing.T) {
	for _, key := range []string{"PROJ", "p", "AB_12"} {
		require.True(t, ValidProjectKey(key), key)
	}
	for _, key := range []string{"", "1PROJ", "PROJ-1", "PR OJ", `P"`, "_P"} {
		require.False(t, ValidProjectKey(key), key)
	}
}
