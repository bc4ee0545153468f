package meater

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		code int
		want Category
	}{
		{200, OK},
		{400, BadRequest},
		{401, Unauthorized},
		{404, NotFound},
		{429, RateLimited},
		{500, ServerError},
		{201, Unknown},
		{503, Unknown},
		{0, Unknown},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.code))
		})
	}
}

func TestStatusError_TransportWinsUnlessOK(t *testing.T) {
	e := statusError("op", 401, 200)
	assert.True(t, errors.Is(e, ErrUnauthorized))
	assert.True(t, e.Has(Unauthorized))

	e = statusError("op", 200, 404)
	assert.True(t, errors.Is(e, ErrNotFound))
	assert.Equal(t, ClassRemote, e.Class)
	assert.False(t, e.Has(Unauthorized))

	e = statusError("op", 404, 401)
	assert.True(t, errors.Is(e, ErrNotFound))
	assert.True(t, e.Has(Unauthorized), "payload code is classified independently")
}

func TestError_IsAndWrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("poll: %w", newError("fetch", ClassNetwork, KindTransport, cause))

	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, ClassNetwork, ClassOf(err))
	assert.False(t, IsSessionFatal(err))
	assert.True(t, IsSessionFatal(ErrMissingCredentials))
	assert.Contains(t, err.Error(), "fetch: network error: transport")
}
