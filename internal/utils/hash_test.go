package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestHashFileMatchesHashBytes(t *testing.T) {
	data := []byte("content-addressed storage keys on these bytes")
	path := writeTemp(t, data)

	fromFile, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashBytes(data), fromFile)
	assert.Len(t, fromFile, 64)
}

func TestQuickHashStableForSmallFile(t *testing.T) {
	data := bytes.Repeat([]byte("abc"), 1000)

	h1, err := QuickHashFile(writeTemp(t, data))
	require.NoError(t, err)
	h2, err := QuickHashFile(writeTemp(t, data))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := QuickHashFile(writeTemp(t, append(data, 'x')))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestQuickHashSeesHeadAndTailOnly(t *testing.T) {
	// 200 KiB: the head and tail chunks cover the first and last 64 KiB,
	// leaving the middle outside the fingerprint.
	data := make([]byte, 200*1024)
	for i := range data {
		data[i] = byte(i)
	}

	base, err := QuickHashFile(writeTemp(t, data))
	require.NoError(t, err)

	tailChanged := append([]byte(nil), data...)
	tailChanged[len(tailChanged)-10] ^= 0xFF
	h, err := QuickHashFile(writeTemp(t, tailChanged))
	require.NoError(t, err)
	assert.NotEqual(t, base, h)

	headChanged := append([]byte(nil), data...)
	headChanged[10] ^= 0xFF
	h, err = QuickHashFile(writeTemp(t, headChanged))
	require.NoError(t, err)
	assert.NotEqual(t, base, h)

	midChanged := append([]byte(nil), data...)
	midChanged[100*1024] ^= 0xFF
	h, err = QuickHashFile(writeTemp(t, midChanged))
	require.NoError(t, err)
	assert.Equal(t, base, h, "the middle of the file is not part of the fingerprint")
}

func TestQuickHashDependsOnSize(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 300*1024)

	h1, err := QuickHashFile(writeTemp(t, data))
	require.NoError(t, err)

	// Same head and tail bytes, different length.
	h2, err := QuickHashFile(writeTemp(t, data[:250*1024]))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
