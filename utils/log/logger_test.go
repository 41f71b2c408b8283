package log

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextIDs(t *testing.T) {
	ctx := ContextWithSessionID(context.Background(), "sess-1")
	ctx = ContextWithRequestID(ctx, "req-1")

	assert.Equal(t, "sess-1", SessionIDFromContext(ctx))
	assert.Equal(t, "", SessionIDFromContext(context.Background()))
	assert.NotNil(t, WithCtx(ctx))
}

func TestSetupWithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "pdfchat.log")
	Setup(true, file)
	t.Cleanup(func() { Setup(false, "") })

	WithCtx(context.Background()).Info("hello")
	_ = Sync()

	assert.FileExists(t, file)
	require.NotNil(t, With())
}
