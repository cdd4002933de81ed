package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-serverless/internal/token"
)

const secret = "unit-test-secret"

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newCodec(t *testing.T, clk *clock) *token.Codec {
	t.Helper()
	codec, err := token.NewCodec(secret, 15*time.Minute, 24*time.Hour, token.WithClock(clk.Now))
	require.NoError(t, err)
	return codec
}

func TestIssueAndVerify(t *testing.T) {
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := newCodec(t, clk)
	userID := uuid.New()

	pair, err := codec.Issue(userID)
	require.NoError(t, err)
	assert.NotEqual(t, pair.Access, pair.Refresh)

	got, err := codec.Verify(pair.Access, token.Access)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	got, err = codec.Verify(pair.Refresh, token.Refresh)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestAudienceSeparation(t *testing.T) {
	clk := &clock{now: time.Now()}
	codec := newCodec(t, clk)

	pair, err := codec.Issue(uuid.New())
	require.NoError(t, err)

	_, err = codec.Verify(pair.Access, token.Refresh)
	assert.ErrorIs(t, err, token.ErrWrongAudience)

	_, err = codec.Verify(pair.Refresh, token.Access)
	assert.ErrorIs(t, err, token.ErrWrongAudience)
}

func TestClaimsShape(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec := newCodec(t, &clock{now: issued})
	userID := uuid.New()

	pair, err := codec.Issue(userID)
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(pair.Refresh, claims)
	require.NoError(t, err)

	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, jwt.ClaimStrings{"refresh"}, claims.Audience)
	assert.True(t, claims.IssuedAt.Equal(issued))
	assert.True(t, claims.NotBefore.Equal(issued))
	assert.True(t, claims.ExpiresAt.Equal(issued.Add(24*time.Hour)))
}

func TestVerifyFailures(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := &clock{now: issued}
	codec := newCodec(t, clk)

	pair, err := codec.Issue(uuid.New())
	require.NoError(t, err)

	other, err := token.NewCodec("another-secret", 0, 0, token.WithClock(clk.Now))
	require.NoError(t, err)
	foreign, err := other.Issue(uuid.New())
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Audience:  jwt.ClaimStrings{"access"},
		ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		Audience:  jwt.ClaimStrings{"access"},
		ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	tests := []struct {
		name     string
		raw      string
		audience token.Audience
		at       time.Time
		want     error
	}{
		{name: "garbage", raw: "abc", audience: token.Access, at: issued, want: token.ErrMalformed},
		{name: "empty", raw: "", audience: token.Access, at: issued, want: token.ErrMalformed},
		{name: "bad subject", raw: badSubject, audience: token.Access, at: issued, want: token.ErrMalformed},
		{name: "foreign secret", raw: foreign.Access, audience: token.Access, at: issued, want: token.ErrSignatureInvalid},
		{name: "alg none", raw: unsigned, audience: token.Access, at: issued, want: token.ErrSignatureInvalid},
		{name: "access expired", raw: pair.Access, audience: token.Access, at: issued.Add(16 * time.Minute), want: token.ErrExpired},
		{name: "refresh expired", raw: pair.Refresh, audience: token.Refresh, at: issued.Add(25 * time.Hour), want: token.ErrExpired},
		{name: "expired beats audience", raw: pair.Access, audience: token.Refresh, at: issued.Add(time.Hour), want: token.ErrExpired},
		{name: "before not-before", raw: pair.Access, audience: token.Access, at: issued.Add(-time.Minute), want: token.ErrNotYetValid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk.now = tt.at
			got, err := codec.Verify(tt.raw, tt.audience)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, uuid.Nil, got)
		})
	}
}

func TestRefreshOutlivesAccess(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := &clock{now: issued}
	codec := newCodec(t, clk)

	pair, err := codec.Issue(uuid.New())
	require.NoError(t, err)

	clk.now = issued.Add(time.Hour)
	_, err = codec.Verify(pair.Access, token.Access)
	assert.ErrorIs(t, err, token.ErrExpired)
	_, err = codec.Verify(pair.Refresh, token.Refresh)
	assert.NoError(t, err)
}

func TestNewCodec(t *testing.T) {
	_, err := token.NewCodec("", time.Minute, time.Hour)
	assert.ErrorIs(t, err, token.ErrSigning)

	codec, err := token.NewCodec(secret, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, token.DefaultAccessTTL, codec.AccessTTL())
}
