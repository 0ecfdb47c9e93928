package ledger

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenomination_ParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		d       Denomination
		amount  string
		want    string
		wantErr bool
	}{
		{"one AR", DenominationAR, "1", "1000000000000", false},
		{"fraction of AR", DenominationAR, "0.25", "250000000000", false},
		{"smallest AR unit", DenominationAR, "0.000000000001", "1", false},
		{"finer than smallest unit", DenominationAR, "0.0000000000001", "", true},
		{"one ETH", DenominationETH, "1", "1000000000000000000", false},
		{"zero", DenominationETH, "0", "0", false},
		{"negative", DenominationAR, "-1", "", true},
		{"garbage", DenominationAR, "lots", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.d.ParseAmount(tt.amount)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestDenomination_Format(t *testing.T) {
	assert.Equal(t, "1", DenominationAR.Format(big.NewInt(1_000_000_000_000)))
	assert.Equal(t, "0.5", DenominationAR.Format(big.NewInt(500_000_000_000)))
	assert.Equal(t, "0", DenominationAR.Format(big.NewInt(0)))
}

func TestGatewayQuoter_Quote(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("123456789\n"))
	}))
	defer server.Close()

	q := newQuoterFor(t, server.URL)

	fee, err := q.Quote(context.Background(), 2048, "target-addr")
	require.NoError(t, err)
	assert.Equal(t, "123456789", fee.String())
	assert.Equal(t, "/price/2048/target-addr", gotPath)

	_, err = q.Quote(context.Background(), 0, "")
	require.NoError(t, err)
	assert.Equal(t, "/price/0", gotPath)
}

func TestGatewayQuoter_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusBadGateway, "upstream down", "returned 502"},
		{"not a number", http.StatusOK, "cheap", "invalid price"},
		{"negative", http.StatusOK, "-5", "invalid price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newQuoterFor(t, server.URL).Quote(context.Background(), 10, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		q, err := NewGatewayQuoter(GatewayConfig{Host: "127.0.0.1", Port: 1, Protocol: "http"})
		require.NoError(t, err)
		_, err = q.Quote(context.Background(), 10, "")
		assert.Error(t, err)
	})
}

func TestNewGatewayQuoter_Validation(t *testing.T) {
	_, err := NewGatewayQuoter(GatewayConfig{})
	assert.Error(t, err)

	_, err = NewGatewayQuoter(GatewayConfig{Host: "example.org", Protocol: "gopher"})
	assert.Error(t, err)
}

func newQuoterFor(t *testing.T, raw string) *GatewayQuoter {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	q, err := NewGatewayQuoter(GatewayConfig{Host: u.Hostname(), Port: port, Protocol: u.Scheme})
	require.NoError(t, err)
	return q
}

type stubGasPricer struct {
	price *big.Int
	err   error
}

func (s stubGasPricer) SuggestGasPrice(context.Context) (*big.Int, error) {
	return s.price, s.err
}

func TestEVMQuoter_Quote(t *testing.T) {
	q := &EVMQuoter{client: stubGasPricer{price: big.NewInt(2)}}

	fee, err := q.Quote(context.Background(), 100, "")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2*(21000+16*100)), fee)

	q = &EVMQuoter{client: stubGasPricer{err: errors.New("rpc down")}}
	_, err = q.Quote(context.Background(), 1, "")
	assert.ErrorContains(t, err, "rpc down")
}
