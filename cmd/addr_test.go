package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		// Valid addresses
		{name: "port only", addr: ":8080", wantErr: false},
		{name: "localhost", addr: "localhost:3500", wantErr: false},
		{name: "loopback", addr: "127.0.0.1:3500", wantErr: false},
		{name: "all interfaces", addr: "0.0.0.0:80", wantErr: false},
		{name: "ipv6 loopback", addr: "[::1]:8080", wantErr: false},
		{name: "port zero", addr: ":0", wantErr: false},
		{name: "port max", addr: ":65535", wantErr: false},
		{name: "hostname", addr: "myhost:9090", wantErr: false},

		// Invalid: bad format
		{name: "no port", addr: "localhost", wantErr: true},
		{name: "port alone", addr: "8080", wantErr: true},
		{name: "empty string", addr: "", wantErr: true},

		// Invalid: bad port
		{name: "port non-numeric", addr: ":abc", wantErr: true},
		{name: "port negative", addr: ":-1", wantErr: true},
		{name: "port too high", addr: ":65536", wantErr: true},
		{name: "port empty after colon", addr: "localhost:", wantErr: true},

		// Invalid: bad host
		{name: "host with space", addr: "my host:8080", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateAddr(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseServeAddr(t *testing.T) {
	t.Parallel()

	addr, err := parseServeAddr("127.0.0.1:3500", nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3500", addr, "default used with no args")

	addr, err = parseServeAddr("127.0.0.1:3500", []string{":8080"})
	require.NoError(t, err)
	assert.Equal(t, ":8080", addr, "positional argument")

	addr, err = parseServeAddr("127.0.0.1:3500", []string{"--addr", ":9090"})
	require.NoError(t, err)
	assert.Equal(t, ":9090", addr, "flag form")

	_, err = parseServeAddr("127.0.0.1:3500", []string{"not-an-addr"})
	assert.Error(t, err)
}

func FuzzValidateAddr(f *testing.F) {
	f.Add(":8080")
	f.Add("localhost:3500")
	f.Add("127.0.0.1:80")
	f.Add("")
	f.Add("abc")
	f.Add(":0")

	f.Fuzz(func(t *testing.T, addr string) {
		// Must never panic, whatever the input.
		_ = validateAddr(addr)
	})
}
