package price

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newQuoteServer(t *testing.T, body string, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/simple/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "ethereum" {
			t.Errorf("ids = %q, want ethereum", got)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestEtherPriceCaches(t *testing.T) {
	srv, hits := newQuoteServer(t, `{"ethereum":{"inr":250000.5}}`, http.StatusOK)
	c := NewClient(Config{BaseURL: srv.URL, CacheTTL: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		v, err := c.EtherPrice(context.Background(), "INR")
		if err != nil {
			t.Fatalf("EtherPrice() error = %v", err)
		}
		if v.String() != "250000.5" {
			t.Errorf("EtherPrice() = %s, want 250000.5", v)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}

func TestEtherPriceErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		fiat    string
		noQuote bool
	}{
		{"server error", `{}`, http.StatusTooManyRequests, "inr", false},
		{"malformed body", `not json`, http.StatusOK, "inr", false},
		{"missing currency", `{"ethereum":{"usd":3000}}`, http.StatusOK, "inr", true},
		{"empty currency", `{}`, http.StatusOK, " ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newQuoteServer(t, tt.body, tt.status)
			c := NewClient(Config{BaseURL: srv.URL, CacheTTL: time.Minute}, nil)
			_, err := c.EtherPrice(context.Background(), tt.fiat)
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrNoQuote) != tt.noQuote {
				t.Errorf("errors.Is(err, ErrNoQuote) = %v, want %v (err: %v)", !tt.noQuote, tt.noQuote, err)
			}
		})
	}
}

type fixedOracle string

func (f fixedOracle) EtherPrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.RequireFromString(string(f)), nil
}

func TestToFiat(t *testing.T) {
	wei, _ := new(big.Int).SetString("2500000000000000000", 10) // 2.5 ETH
	got, err := ToFiat(context.Background(), fixedOracle("2000"), wei, "usd")
	if err != nil {
		t.Fatalf("ToFiat() error = %v", err)
	}
	if got.String() != "5000" {
		t.Errorf("ToFiat() = %s, want 5000", got)
	}
}
