package tables

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostgresDirectory_MalformedIDIsNotFound(t *testing.T) {
	// nil db: the lookup must be answered before any query is sent
	d := NewPostgresDirectory(nil)
	for _, id := range []string{"garbage", "", "T1"} {
		_, err := d.Get(context.Background(), id)
		require.ErrorIs(t, err, ErrNotFound, id)
	}
}
