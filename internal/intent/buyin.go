package intent

import (
	"math/big"
	"regexp"
	"strings"
)

// Currency is the only accepted buy-in denomination.
const Currency = "USDC"

// BuyInKind tags a BuyIn variant.
type BuyInKind int

const (
	BuyInInvalid BuyInKind = iota
	BuyInNone
	BuyInAmount
)

// BuyIn is NoBuyIn, Amount(value USDC) or Invalid(raw).
type BuyIn struct {
	Kind   BuyInKind
	Amount *big.Rat // non-nil and non-negative for BuyInAmount
	Raw    string   // original text for BuyInInvalid
}

// NoBuyIn is a free game.
func NoBuyIn() BuyIn { return BuyIn{Kind: BuyInNone} }

// Amount is a USDC stake. Negative values are Invalid.
func Amount(v *big.Rat) BuyIn {
	if v == nil || v.Sign() < 0 {
		return Invalid("")
	}
	return BuyIn{Kind: BuyInAmount, Amount: new(big.Rat).Set(v)}
}

// Invalid carries unparseable buy-in text.
func Invalid(raw string) BuyIn { return BuyIn{Kind: BuyInInvalid, Raw: raw} }

// Decimal renders the amount without trailing zeros ("0.5", "2"). NoBuyIn is "0".
func (b BuyIn) Decimal() string {
	switch b.Kind {
	case BuyInNone:
		return "0"
	case BuyInAmount:
		return formatDecimal(b.Amount)
	}
	return ""
}

func (b BuyIn) String() string {
	switch b.Kind {
	case BuyInNone:
		return "no buy-in"
	case BuyInAmount:
		return b.Decimal() + " " + Currency
	}
	return "invalid(" + b.Raw + ")"
}

var (
	noBuyInRe    = regexp.MustCompile(`^no[\s-]*buy[\s-]*in$`)
	amountRe     = regexp.MustCompile(`^\$?\s*(\d+(?:\.\d+)?|\.\d+)\s*(\$|usdc)?$`)
	otherCurRe   = regexp.MustCompile(`^(\d+(?:\.\d+)?|\.\d+)\s*([a-z]{2,10})$`)
	amountLikeRe = regexp.MustCompile(`^[-+]?(\d|\.\d)`)
)

// ParseBuyIn parses a whole string as a buy-in answer:
//
//	"0.5", "0.5$", "0.5 USDC"  -> Amount(0.5)
//	"no buy-in" (any casing)   -> NoBuyIn
//	"5 ETH", "-1", "lots"      -> Invalid
func ParseBuyIn(text string) BuyIn {
	s := strings.ToLower(strings.TrimSpace(text))
	if noBuyInRe.MatchString(s) {
		return NoBuyIn()
	}
	if m := amountRe.FindStringSubmatch(s); m != nil {
		if r, ok := parseDecimal(m[1]); ok {
			return Amount(r)
		}
	}
	return Invalid(strings.TrimSpace(text))
}

func parseDecimal(s string) (*big.Rat, bool) {
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	return new(big.Rat).SetString(s)
}

// LooksLikeBuyIn reports whether text reads as an answer to "how much?":
// a "no buy-in" phrase or something starting with a number.
func LooksLikeBuyIn(text string) bool {
	s := strings.ToLower(strings.TrimSpace(text))
	return noBuyInRe.MatchString(s) || amountLikeRe.MatchString(s)
}

// isOtherCurrency reports a number followed by a currency-like token that is not USDC.
func isOtherCurrency(s string) bool {
	m := otherCurRe.FindStringSubmatch(s)
	return m != nil && m[2] != "usdc"
}

func formatDecimal(r *big.Rat) string {
	if r == nil {
		return ""
	}
	if r.IsInt() {
		return r.Num().String()
	}
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
