package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeErrorUnwraps(t *testing.T) {
	base := errors.New("missing permalink")
	err := fmt.Errorf("listing: %w", &DecodeError{EventID: "c1", Err: base})

	assert.True(t, IsDecode(err))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "decode event c1")
	assert.False(t, IsDecode(base))
}

func TestAsTransport(t *testing.T) {
	err := AsTransport("poll", ErrEndOfStream)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "poll", te.Op)
	assert.ErrorIs(t, err, ErrEndOfStream)
	assert.Equal(t, "feed: poll: feed: end of stream", err.Error())

	// Already typed errors are not wrapped twice.
	assert.Same(t, te, AsTransport("open", err).(*TransportError))

	assert.ErrorIs(t, AsTransport("open", context.Canceled), context.Canceled)
	assert.False(t, errors.As(AsTransport("open", context.Canceled), &te))
	assert.NoError(t, AsTransport("open", nil))
}
