package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/renstrom/shortuuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
)

func TestAddGet(t *testing.T) {
	ctx := context.Background()
	ctx = metadata.NewIncomingContext(ctx, metadata.New(map[string]string{}))

	id := shortuuid.New()
	ctx, ok := AddToIncomingContext(ctx, id)
	require.True(t, ok, "error adding id to context")

	readId, ok := FromContext(ctx)
	require.True(t, ok, "error getting id from context")
	assert.Equal(t, id, readId)

	// Overwriting the id
	id = shortuuid.New()
	ctx, ok = AddToIncomingContext(ctx, id)
	require.True(t, ok, "error overwriting id")

	readId, ok = FromContext(ctx)
	require.True(t, ok, "error getting overwritten id from context")
	assert.Equal(t, id, readId)
}

func TestFromContextOrMissing(t *testing.T) {
	assert.Equal(t, "missing", FromContextOrMissing(context.Background()))
}

func TestUnaryServerInterceptor(t *testing.T) {
	ctx := context.Background()
	ctx = metadata.NewIncomingContext(ctx, metadata.New(map[string]string{}))
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		id, ok := FromContext(ctx)
		require.True(t, ok, "error getting id from context")
		assert.NotEmpty(t, id)
		return nil, nil
	}

	for _, replace := range []bool{false, true} {
		_, err := UnaryServerInterceptor(replace)(ctx, nil, nil, handler)
		require.NoError(t, err)
	}
}

func TestUnaryServerInterceptorWithExisting(t *testing.T) {
	id := shortuuid.New()
	ctx := context.Background()
	ctx = metadata.NewIncomingContext(ctx, metadata.New(map[string]string{}))
	ctx, ok := AddToIncomingContext(ctx, id)
	require.True(t, ok, "error adding id to context")

	tests := map[string]struct {
		replace      bool
		expectSameId bool
	}{
		"keep existing":    {replace: false, expectSameId: true},
		"replace existing": {replace: true, expectSameId: false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var readId string
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				readId, ok = FromContext(ctx)
				require.True(t, ok, "error getting id from context")
				return nil, nil
			}
			_, err := UnaryServerInterceptor(tc.replace)(ctx, nil, nil, handler)
			require.NoError(t, err)
			if tc.expectSameId {
				assert.Equal(t, id, readId)
			} else {
				assert.NotEqual(t, id, readId)
			}
		})
	}
}

func TestHttpMiddleware_GeneratesId(t *testing.T) {
	var seen string
	handler := HttpMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContextOrMissing(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.NotEqual(t, "missing", seen)
	assert.Equal(t, seen, rec.Header().Get(HeaderKey))
}

func TestHttpMiddleware_KeepsCallerId(t *testing.T) {
	var seen string
	handler := HttpMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContextOrMissing(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderKey, "abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get(HeaderKey))
}
