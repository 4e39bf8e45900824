package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studyshelf/apiserver/types"
)

const testSecret = "test-secret"

func testCodec(now time.Time) *Codec {
	codec := NewCodec(testSecret, DefaultTokenTTL)
	codec.now = func() time.Time { return now }
	return codec
}

func testUser() types.User {
	return types.User{
		ID:         42,
		Username:   "mrs.pop",
		Email:      "pop@school.example",
		Grade:      7,
		Role:       types.RoleTeacher,
		IsApproved: true,
	}
}

func TestIssueDecodeRoundTrip(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	codec := testCodec(issuedAt)

	user := testUser()
	token, err := codec.Issue(user)
	require.NoError(t, err)

	claims, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, user.Username, claims.Subject)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Role, claims.Role)
	assert.Equal(t, user.Grade, claims.Grade)
	assert.Equal(t, user.IsApproved, claims.IsApproved)
}

func TestDecodeSnapshotSurvivesUserMutation(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	codec := testCodec(issuedAt)

	user := testUser()
	token, err := codec.Issue(user)
	require.NoError(t, err)

	// Mutating the record after issuance changes nothing in the token.
	user.IsApproved = false
	user.Grade = 5

	claims, err := codec.Decode(token)
	require.NoError(t, err)
	assert.True(t, claims.IsApproved)
	assert.Equal(t, 7, claims.Grade)
}

func TestDecodeExpiryBoundary(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	expiry := issuedAt.Add(DefaultTokenTTL)

	codec := testCodec(issuedAt)
	token, err := codec.Issue(testUser())
	require.NoError(t, err)

	// One instant before expiry the token still decodes.
	codec.now = func() time.Time { return expiry.Add(-time.Second) }
	_, err = codec.Decode(token)
	assert.NoError(t, err)

	// At the exact expiry instant it is already expired.
	codec.now = func() time.Time { return expiry }
	_, err = codec.Decode(token)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, DecodeExpired, decodeErr.Kind)

	// And after it, of course.
	codec.now = func() time.Time { return expiry.Add(time.Hour) }
	_, err = codec.Decode(token)
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, DecodeExpired, decodeErr.Kind)
}

func TestDecodeMalformed(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	codec := testCodec(now)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.token)
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, DecodeMalformed, decodeErr.Kind)
		})
	}
}

func TestDecodeRejectsForeignSignature(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	other := NewCodec("a-different-secret", DefaultTokenTTL)
	other.now = func() time.Time { return now }
	token, err := other.Issue(testUser())
	require.NoError(t, err)

	codec := testCodec(now)
	_, err = codec.Decode(token)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, DecodeMalformed, decodeErr.Kind)
}

func TestIssueUsesConfiguredTTL(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	codec := NewCodec(testSecret, 10*time.Minute)
	codec.now = func() time.Time { return issuedAt }

	token, err := codec.Issue(testUser())
	require.NoError(t, err)

	codec.now = func() time.Time { return issuedAt.Add(9 * time.Minute) }
	_, err = codec.Decode(token)
	assert.NoError(t, err)

	codec.now = func() time.Time { return issuedAt.Add(11 * time.Minute) }
	_, err = codec.Decode(token)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, DecodeExpired, decodeErr.Kind)
}
