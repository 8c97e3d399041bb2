package tlsconf

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeRootsLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	der := selfSignedDER(t, "once")
	roots := &NativeRoots{Source: func() ([][]byte, error) {
		loads.Add(1)
		time.Sleep(20 * time.Millisecond)
		return [][]byte{der}, nil
	}}

	const callers = 32
	results := make([]*RootsResult, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = roots.Load()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for _, res := range results {
		assert.Same(t, results[0], res)
	}
	assert.Equal(t, 1, results[0].Valid)
}

func TestNativeRootsAllValid(t *testing.T) {
	var ders [][]byte
	for range 5 {
		ders = append(ders, selfSignedDER(t, "valid"))
	}
	fallbackCalled := false
	roots := &NativeRoots{
		Source: func() ([][]byte, error) { return ders, nil },
		Fallback: func() (*x509.CertPool, error) {
			fallbackCalled = true
			return x509.NewCertPool(), nil
		},
	}

	res := roots.Load()
	assert.Equal(t, 5, res.Valid)
	assert.Zero(t, res.Invalid)
	assert.False(t, res.FellBack)
	assert.False(t, fallbackCalled)
	require.NotNil(t, res.Pool)
}

func TestNativeRootsAllInvalidFallsBack(t *testing.T) {
	sentinel := x509.NewCertPool()
	roots := &NativeRoots{
		Source: func() ([][]byte, error) {
			return [][]byte{{0x01}, {0x02, 0x03}, []byte("garbage")}, nil
		},
		Fallback: func() (*x509.CertPool, error) { return sentinel, nil },
	}

	res := roots.Load()
	assert.Zero(t, res.Valid)
	assert.Equal(t, 3, res.Invalid)
	assert.True(t, res.FellBack)
	assert.Same(t, sentinel, res.Pool)
	assert.Len(t, res.Errors, 3)
}

func TestNativeRootsEmptyBundleKeepsEmptyPool(t *testing.T) {
	fallbackCalled := false
	roots := &NativeRoots{
		Source: func() ([][]byte, error) { return nil, nil },
		Fallback: func() (*x509.CertPool, error) {
			fallbackCalled = true
			return x509.NewCertPool(), nil
		},
	}

	res := roots.Load()
	assert.Zero(t, res.Valid)
	assert.Zero(t, res.Invalid)
	assert.False(t, res.FellBack)
	assert.False(t, fallbackCalled)
	require.NotNil(t, res.Pool)
}

func TestNativeRootsPartiallyInvalid(t *testing.T) {
	roots := &NativeRoots{Source: func() ([][]byte, error) {
		return [][]byte{selfSignedDER(t, "a"), {0xff}, selfSignedDER(t, "b")}, nil
	}}

	res := roots.Load()
	assert.Equal(t, 2, res.Valid)
	assert.Equal(t, 1, res.Invalid)
	assert.False(t, res.FellBack)
}

func TestNativeRootsSourceErrorFallsBack(t *testing.T) {
	boom := errors.New("keychain unavailable")
	sentinel := x509.NewCertPool()
	roots := &NativeRoots{
		Source:   func() ([][]byte, error) { return nil, boom },
		Fallback: func() (*x509.CertPool, error) { return sentinel, nil },
	}

	res := roots.Load()
	assert.True(t, res.FellBack)
	assert.Same(t, sentinel, res.Pool)
	assert.ErrorIs(t, errors.Join(res.Errors...), boom)
}

func TestWithNativeRootsLogsParseFailures(t *testing.T) {
	logger := &recordingLogger{}
	roots := &NativeRoots{
		Source: func() ([][]byte, error) {
			return [][]byte{{0x01}, {0x02}, {0x03}}, nil
		},
		Fallback: func() (*x509.CertPool, error) { return nil, nil },
	}

	c, err := Build(chromeLikeSpec, WithLogger(logger), WithNativeRoots(roots))
	require.NoError(t, err)
	assert.Nil(t, c.RootCAs())
	assert.Equal(t, 4, logger.count())
}

func TestDERFromPEM(t *testing.T) {
	der := selfSignedDER(t, "pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1}})...)
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)

	ders := DERFromPEM(data)
	require.Len(t, ders, 2)
	assert.Equal(t, der, ders[0])

	pool, err := TrustStoreFromPEM(data)
	require.NoError(t, err)
	assert.NotNil(t, pool)
}
