package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPut(t *testing.T) {
	m := NewMemory("https://cdn.example.com/")
	url, err := m.Put(context.Background(), "acme/a.jpg", strings.NewReader("JPEG"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/acme/a.jpg", url)

	b, ok := m.Object("acme/a.jpg")
	require.True(t, ok)
	assert.Equal(t, "JPEG", string(b))
}
