package domain

import "testing"

func TestClassifyMarket(t *testing.T) {
	cases := []struct {
		code string
		want Market
	}{
		{"600519", MarketAShare},
		{"000001", MarketAShare},
		{"510300", MarketETF},
		{"159919", MarketETF},
		{"HK00700", MarketHK},
		{"00700", MarketHK},
		{"AAPL", MarketUS},
		{"BRK.A", MarketUS},
		{"!!!", MarketUnknown},
	}
	for _, c := range cases {
		if got := ClassifyMarket(c.code); got != c.want {
			t.Errorf("ClassifyMarket(%q) = %q, want %q", c.code, got, c.want)
		}
	}
}
