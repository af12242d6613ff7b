package captcha

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(client, Options{TTL: 2 * time.Minute}), mr
}

func TestKeyShape(t *testing.T) {
	key := Key("10.0.0.1", "curl/8.0")
	// sha256("10.0.0.1:curl/8.0") rendered as lowercase hex.
	assert.True(t, strings.HasPrefix(key, "captcha:"))
	assert.Len(t, strings.TrimPrefix(key, "captcha:"), 64)
	assert.Equal(t, key, Key("10.0.0.1", "curl/8.0"))
	assert.NotEqual(t, key, Key("10.0.0.2", "curl/8.0"))
}

func TestIssueStoresCodeAndReturnsSVG(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	payload, err := svc.Issue(ctx, "1.1.1.1", "ua")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(payload, "data:image/svg+xml;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(payload, "data:image/svg+xml;base64,"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "<svg"))

	code, err := mr.Get(Key("1.1.1.1", "ua"))
	require.NoError(t, err)
	assert.Len(t, code, 4)
	assert.Equal(t, 2*time.Minute, mr.TTL(Key("1.1.1.1", "ua")))
}

func TestVerifyIsCaseInsensitiveAndOneTime(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()
	require.NoError(t, mr.Set(Key("ip", "ua"), "AbC2"))

	ok, err := svc.Verify(ctx, "ip", "ua", "abc2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Verify(ctx, "ip", "ua", "abc2")
	require.NoError(t, err)
	assert.False(t, ok, "code must be consumed after first success")
}

func TestVerifyMismatchKeepsCode(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()
	require.NoError(t, mr.Set(Key("ip", "ua"), "WXYZ"))

	ok, err := svc.Verify(ctx, "ip", "ua", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists(Key("ip", "ua")))

	ok, err = svc.Verify(ctx, "ip", "other-agent", "WXYZ")
	require.NoError(t, err)
	assert.False(t, ok, "code is bound to the user agent")

	ok, err = svc.Verify(ctx, "ip", "ua", "wxyz")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyMissingOrEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	ok, err := svc.Verify(context.Background(), "ip", "ua", "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.Verify(context.Background(), "ip", "ua", "ABCD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRenderEscapesGlyphs(t *testing.T) {
	out := Render("a<b", 120, 40)
	assert.Contains(t, out, "&lt;")
	assert.True(t, strings.HasSuffix(out, "</svg>"))
}
