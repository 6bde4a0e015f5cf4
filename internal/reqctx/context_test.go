package reqctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RID(ctx))
	assert.Empty(t, UID(ctx))

	ctx = WithUID(WithRID(ctx, "req-1"), "u1")
	assert.Equal(t, "req-1", RID(ctx))
	assert.Equal(t, "u1", UID(ctx))
}
