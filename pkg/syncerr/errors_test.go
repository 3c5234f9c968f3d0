package syncerr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeUnwrapsWrappedSentinels(t *testing.T) {
	wrapped := fmt.Errorf("lookup rift %s: %w", "rift-1", ErrRiftNotFound)
	require.Equal(t, "rift_not_found", Code(wrapped))
}

func TestCodeFallsBackToInternal(t *testing.T) {
	require.Equal(t, "internal", Code(fmt.Errorf("boom")))
}
