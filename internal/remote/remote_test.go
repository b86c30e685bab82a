package remote

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stormbench/orchestrator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_Success(t *testing.T) {
	assert.True(t, Result{ExitCode: 0}.Success())
	assert.False(t, Result{ExitCode: 1}.Success())
	assert.False(t, Result{ExitCode: -1}.Success())
}

func TestAuthMethods_NoCredentialsIsError(t *testing.T) {
	_, err := authMethods(types.Credentials{})
	assert.Error(t, err)
}

func TestAuthMethods_PasswordOnly(t *testing.T) {
	methods, err := authMethods(types.Credentials{Password: "secret"})
	require.NoError(t, err)
	assert.Len(t, methods, 1)
}

func TestAuthMethods_PrivateKeyOnly(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	methods, err := authMethods(types.Credentials{PrivateKey: pemBytes})
	require.NoError(t, err)
	assert.Len(t, methods, 1)
}

func TestAuthMethods_BothKeyAndPasswordYieldsTwoMethods(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	methods, err := authMethods(types.Credentials{PrivateKey: pemBytes, Password: "secret"})
	require.NoError(t, err)
	assert.Len(t, methods, 2)
}

func TestAuthMethods_InvalidPrivateKeyIsError(t *testing.T) {
	_, err := authMethods(types.Credentials{PrivateKey: []byte("not a real key")})
	assert.Error(t, err)
}

func TestResultFromRun_NilErrorIsSuccess(t *testing.T) {
	res := resultFromRun(nil, "out", "err")
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out", res.Stdout)
	assert.True(t, res.Success())
}

func TestResultFromRun_NonExitErrorIsTransient(t *testing.T) {
	res := resultFromRun(assertError("broken pipe"), "", "")
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, types.ErrorTransientRemote, res.ErrorKind)
}

func TestSessionError_DialTransportFailureIsTransient(t *testing.T) {
	res := sessionError(assertError("dial tcp: connection refused"))
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, types.ErrorTransientRemote, res.ErrorKind)
}

func TestSessionError_DNSFailureIsTransient(t *testing.T) {
	res := sessionError(assertError("dial tcp: lookup worker-9: no such host"))
	assert.Equal(t, types.ErrorTransientRemote, res.ErrorKind)
}

func TestSessionError_DialTimeoutIsTransient(t *testing.T) {
	res := sessionError(assertError("dial tcp: i/o timeout"))
	assert.Equal(t, types.ErrorTransientRemote, res.ErrorKind)
}

func TestSessionError_HandshakeAuthRejectionIsAuthFailure(t *testing.T) {
	res := sessionError(assertError("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none publickey], no supported methods remain"))
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, types.ErrorAuthFailure, res.ErrorKind)
}

func TestSessionError_NoCredentialsConfiguredIsAuthFailure(t *testing.T) {
	res := sessionError(assertError("auth-unsupported: no private key or password configured"))
	assert.Equal(t, types.ErrorAuthFailure, res.ErrorKind)
}

func TestSessionError_InvalidPrivateKeyIsAuthFailure(t *testing.T) {
	res := sessionError(assertError("parsing private key: ssh: no key found"))
	assert.Equal(t, types.ErrorAuthFailure, res.ErrorKind)
}

type assertError string

func (e assertError) Error() string { return string(e) }
