package cascade

import (
	talib "github.com/markcheno/go-talib"
	"github.com/stockpanel/sentinel/internal/domain"
)

// WithMovingAverages fills each bar's derived MA5/MA10/MA20 and
// VolumeRatio fields in place, once enough preceding history exists to
// compute them. Bars must already be ordered oldest-to-newest.
func WithMovingAverages(bars []domain.KLineBar) {
	n := len(bars)
	if n == 0 {
		return
	}

	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	applyMA(bars, closes, 5, func(b *domain.KLineBar, v float64) { b.MA5 = &v })
	applyMA(bars, closes, 10, func(b *domain.KLineBar, v float64) { b.MA10 = &v })
	applyMA(bars, closes, 20, func(b *domain.KLineBar, v float64) { b.MA20 = &v })

	volMA5 := talib.Sma(volumes, 5)
	for i := range bars {
		if i < 4 {
			continue
		}
		avg := volMA5[i]
		if avg <= 0 {
			continue
		}
		ratio := volumes[i] / avg
		bars[i].VolumeRatio = &ratio
	}
}

func applyMA(bars []domain.KLineBar, closes []float64, period int, set func(*domain.KLineBar, float64)) {
	if len(closes) < period {
		return
	}
	ma := talib.Sma(closes, period)
	for i := period - 1; i < len(bars); i++ {
		set(&bars[i], ma[i])
	}
}
