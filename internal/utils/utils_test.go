package utils

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	id := uuid.New()
	token, err := GenerateToken("secret", id, RoleMerchant, time.Hour)
	require.NoError(t, err)

	parsedID, role, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, id, parsedID)
	assert.Equal(t, RoleMerchant, role)

	_, _, err = ParseToken("other-secret", token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpiredAndForeignAlgorithms(t *testing.T) {
	expired, err := GenerateToken("secret", uuid.New(), RoleCustomer, -time.Minute)
	require.NoError(t, err)
	_, _, err = ParseToken("secret", expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"account_id": uuid.NewString(), "role": RoleAdmin})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, _, err = ParseToken("secret", raw)
	assert.Error(t, err)
}

func TestGenerateReferralCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := GenerateReferralCode()
		require.NoError(t, err)
		require.Len(t, code, 8)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(referralAlphabet, r), "unexpected rune %q", r)
		}
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 190)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))
}

func TestParsePagination(t *testing.T) {
	cases := []struct {
		query string
		want  Pagination
	}{
		{"", Pagination{Page: 1, Limit: 20, Offset: 0}},
		{"?page=3&limit=10", Pagination{Page: 3, Limit: 10, Offset: 20}},
		{"?page=0&limit=500", Pagination{Page: 1, Limit: 100, Offset: 0}},
		{"?page=abc&limit=-4", Pagination{Page: 1, Limit: 20, Offset: 0}},
	}

	for _, tc := range cases {
		app := fiber.New()
		var got Pagination
		app.Get("/", func(c *fiber.Ctx) error {
			got = ParsePagination(c)
			return nil
		})
		_, err := app.Test(httptest.NewRequest("GET", "/"+tc.query, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.query)
	}
}
