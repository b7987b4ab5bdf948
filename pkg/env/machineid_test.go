package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoardIDStable(t *testing.T) {
	id := BoardID()
	require.NotEmpty(t, id)
	require.Equal(t, id, BoardID())
}
