package jwtx_test

import (
	"strings"
	"testing"

	"github.com/aussiebroadwan/stamp/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestKeySetPublishesRSAJWK(t *testing.T) {
	signer, err := jwtx.NewSignerRS256("k1", testRSAPEM(t))
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))
	require.True(t, keyset.IsReady())

	jwks := keyset.PublicJWKS()
	require.Len(t, jwks.Keys, 1)

	jwk := jwks.Keys[0]
	require.Equal(t, "RSA", jwk.Kty)
	require.Equal(t, "RS256", jwk.Alg)
	require.Equal(t, "sig", jwk.Use)
	require.Equal(t, "k1", jwk.Kid)
	require.NotEmpty(t, jwk.N)
	require.NotEmpty(t, jwk.E)
}

func TestKeySetResetFromJWKS(t *testing.T) {
	signer, err := jwtx.NewSignerRS256("old", testRSAPEM(t))
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	replacement, err := jwtx.NewSignerRS256("new", testRSAPEM(t))
	require.NoError(t, err)
	jwk, ok := replacement.PublicJWK()
	require.True(t, ok)

	require.NoError(t, keyset.ResetFromJWKS(jwtx.JWKS{Keys: []jwtx.JWK{jwk}}))

	_, err = keyset.Get("old")
	require.ErrorIs(t, err, jwtx.ErrNoKey)
	_, err = keyset.Get("new")
	require.NoError(t, err)
}

func TestJWKPEMRoundTrip(t *testing.T) {
	signer, err := jwtx.NewSignerRS256("k1", testRSAPEM(t))
	require.NoError(t, err)

	jwk, ok := signer.PublicJWK()
	require.True(t, ok)

	pemStr, err := jwk.PEM()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(pemStr, "-----BEGIN PUBLIC KEY-----"))
}
