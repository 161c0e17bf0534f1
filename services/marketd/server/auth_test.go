package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifyAcceptsIssuedToken(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "marketctl", Audience: "marketd"}, nil)
	require.NoError(t, err)
	token, err := IssueToken(testSecret, artistAddr, "marketctl", "marketd", time.Minute, time.Now())
	require.NoError(t, err)
	caller, err := auth.Verify(token)
	require.NoError(t, err)
	require.Equal(t, fill(0x11), caller)
}

func TestVerifyRejects(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "marketctl", Audience: "marketd", ClockSkew: time.Second}, nil)
	require.NoError(t, err)
	now := time.Now()
	cases := []struct {
		name  string
		token func() (string, error)
	}{
		{"wrong issuer", func() (string, error) {
			return IssueToken(testSecret, artistAddr, "someone", "marketd", time.Minute, now)
		}},
		{"wrong audience", func() (string, error) {
			return IssueToken(testSecret, artistAddr, "marketctl", "explorer", time.Minute, now)
		}},
		{"expired", func() (string, error) {
			return IssueToken(testSecret, artistAddr, "marketctl", "marketd", time.Minute, now.Add(-time.Hour))
		}},
		{"wrong secret", func() (string, error) {
			return IssueToken("another", artistAddr, "marketctl", "marketd", time.Minute, now)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := tc.token()
			require.NoError(t, err)
			_, err = auth.Verify(token)
			require.Error(t, err)
		})
	}
}

func TestNewAuthenticatorRequiresSecret(t *testing.T) {
	_, err := NewAuthenticator(AuthConfig{HMACSecret: "  "}, nil)
	require.Error(t, err)
	_, err = IssueToken("secret", "not-an-address", "", "", time.Minute, time.Now())
	require.Error(t, err)
}

func TestExtractBearer(t *testing.T) {
	require.Equal(t, "abc", extractBearer("Bearer abc"))
	require.Equal(t, "abc", extractBearer("bearer  abc "))
	require.Empty(t, extractBearer("Basic abc"))
	require.Empty(t, extractBearer(""))
}
