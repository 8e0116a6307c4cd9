package infra

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevVerifier(t *testing.T) {
	ctx := context.Background()

	id, err := DevVerifier{}.VerifyIDToken(ctx, "d2f1c7a0-0000-4000-8000-000000000001:driver")
	require.NoError(t, err)
	assert.Equal(t, "d2f1c7a0-0000-4000-8000-000000000001", id.UID)
	assert.Equal(t, "driver", id.Role)

	id, err = DevVerifier{}.VerifyIDToken(ctx, "rider-1")
	require.NoError(t, err)
	assert.Equal(t, "", id.Role)

	_, err = DevVerifier{}.VerifyIDToken(ctx, ":driver")
	assert.ErrorIs(t, err, ErrInvalidDevToken)
}

func TestRoleClaim(t *testing.T) {
	assert.Equal(t, "driver", roleClaim(map[string]interface{}{"role": "driver"}))
	assert.Equal(t, "", roleClaim(map[string]interface{}{"role": 7}))
	assert.Equal(t, "", roleClaim(nil))
}
