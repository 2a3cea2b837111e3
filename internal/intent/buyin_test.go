package intent

import (
	"math/big"
	"testing"
)

func TestParseBuyIn(t *testing.T) {
	tests := []struct {
		in      string
		kind    BuyInKind
		decimal string
	}{
		{"0.5", BuyInAmount, "0.5"},
		{"0.5 USDC", BuyInAmount, "0.5"},
		{"0.5$", BuyInAmount, "0.5"},
		{"$2", BuyInAmount, "2"},
		{".25", BuyInAmount, "0.25"},
		{"10 usdc", BuyInAmount, "10"},
		{"1.50", BuyInAmount, "1.5"},
		{"no buy-in", BuyInNone, "0"},
		{"No Buy-In", BuyInNone, "0"},
		{"no buyin", BuyInNone, "0"},
		{"5 ETH", BuyInInvalid, ""},
		{"-1", BuyInInvalid, ""},
		{"lots", BuyInInvalid, ""},
		{"", BuyInInvalid, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			b := ParseBuyIn(tt.in)
			if b.Kind != tt.kind {
				t.Fatalf("ParseBuyIn(%q).Kind = %v, want %v", tt.in, b.Kind, tt.kind)
			}
			if got := b.Decimal(); got != tt.decimal {
				t.Errorf("Decimal() = %q, want %q", got, tt.decimal)
			}
		})
	}
}

func TestAmountRejectsNegative(t *testing.T) {
	if b := Amount(big.NewRat(-1, 2)); b.Kind != BuyInInvalid {
		t.Fatalf("Amount(-0.5).Kind = %v, want invalid", b.Kind)
	}
}

func TestBuyInString(t *testing.T) {
	if got := Amount(big.NewRat(1, 2)).String(); got != "0.5 USDC" {
		t.Errorf("String() = %q", got)
	}
	if got := NoBuyIn().String(); got != "no buy-in" {
		t.Errorf("String() = %q", got)
	}
}
