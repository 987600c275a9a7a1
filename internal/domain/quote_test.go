package domain

import "testing"

func TestUnifiedQuote_HasBasicData(t *testing.T) {
	price := 102.5
	zero := 0.0

	withPrice := &UnifiedQuote{Price: &price}
	if !withPrice.HasBasicData() {
		t.Error("expected quote with a positive price to have basic data")
	}

	withZero := &UnifiedQuote{Price: &zero}
	if withZero.HasBasicData() {
		t.Error("a zero price should not count as basic data")
	}

	noPrice := &UnifiedQuote{}
	if noPrice.HasBasicData() {
		t.Error("a quote with no price should not have basic data")
	}
}
