package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderMapSetGetDel(t *testing.T) {
	var m HeaderMap
	m.Set("Content-Type", "text/plain")
	value, ok := m.Get("content-type")
	require.True(t, ok)
	require.Equal(t, "text/plain", value)

	// Replacing through a different spelling keeps the first spelling.
	m.Set("CONTENT-TYPE", "application/json")
	require.Equal(t, 1, m.Len())
	value, _ = m.Get("Content-Type")
	require.Equal(t, "application/json", value)
	require.Equal(t, []string{"Content-Type"}, m.Names())

	m.Del("content-TYPE")
	_, ok = m.Get("Content-Type")
	require.False(t, ok)
	require.Zero(t, m.Len())
}

func TestHeaderMapWireOrder(t *testing.T) {
	var m HeaderMap
	m.Set("X-Custom", "1")
	m.Set("User-Agent", "test")
	m.Set("Accept", "*/*")
	m.Set("Content-Type", "text/plain")
	m.Set("Authorization", "Bearer token")
	m.Set("Host", "example.com")
	m.Set("Content-Length", "5")

	want := []string{
		"Host",
		"Authorization",
		"Content-Length",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Custom",
	}
	require.Equal(t, want, m.Names())
}

func TestHeaderLess(t *testing.T) {
	require.True(t, headerLess("Host", "Authorization"))
	require.True(t, headerLess("User-Agent", "Accept"))
	require.False(t, headerLess("Accept", "User-Agent"))
	require.True(t, headerLess("accept", "X-Other"))
	require.True(t, headerLess("Transfer-Encoding", "Content-Type"))
}

func TestHeaderMapClear(t *testing.T) {
	var m HeaderMap
	m.Set("A", "1")
	m.Set("B", "2")
	m.Clear()
	require.Zero(t, m.Len())
	require.Empty(t, m.Names())
}
