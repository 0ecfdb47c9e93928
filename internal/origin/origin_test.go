package origin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    string
	}{
		{"strips path and query", "https://dapp.example/swap?token=ar#top", "https://dapp.example"},
		{"lower-cases scheme and host", "HTTPS://DApp.Example/Path", "https://dapp.example"},
		{"drops default https port", "https://dapp.example:443/a", "https://dapp.example"},
		{"drops default http port", "http://dapp.example:80", "http://dapp.example"},
		{"keeps explicit port", "http://localhost:3000/index.html", "http://localhost:3000"},
		{"strips userinfo", "https://user:pw@dapp.example/", "https://dapp.example"},
		{"trailing dot", "https://dapp.example./", "https://dapp.example"},
		{"ipv6 literal", "http://[::1]:8080/x", "http://[::1]:8080"},
		{"ipv6 literal default port", "https://[::1]/", "https://[::1]"},
		{"extension scheme", "chrome-extension://abcdef/popup.html", "chrome-extension://abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.address)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_SameOriginForDifferentPaths(t *testing.T) {
	a, err := Resolve("https://dapp.example/one?x=1")
	require.NoError(t, err)
	b, err := Resolve("https://dapp.example/two/three?y=2")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestResolve_Idempotent(t *testing.T) {
	addresses := []string{
		"https://dapp.example/swap?token=ar",
		"HTTP://LOCALHOST:8080/",
		"http://[::1]:8080/x",
		"https://[2001:db8::1]/",
	}

	for _, address := range addresses {
		t.Run(address, func(t *testing.T) {
			once, err := Resolve(address)
			require.NoError(t, err)
			twice, err := Resolve(once)
			require.NoError(t, err)
			assert.Equal(t, once, twice)
		})
	}
}

func TestResolve_Invalid(t *testing.T) {
	for _, address := range []string{"", "   ", "dapp.example", "/relative/path", "https://", "::not a url"} {
		t.Run(address, func(t *testing.T) {
			_, err := Resolve(address)
			assert.ErrorIs(t, err, ErrInvalidAddress)
		})
	}
}

func TestMustResolve_Panics(t *testing.T) {
	assert.Panics(t, func() { MustResolve("not a url") })
	assert.Equal(t, "https://dapp.example", MustResolve("https://dapp.example/x"))
}
