package domain

import "time"

// KLineBar is one daily bar in a price history. Bars are ordered
// oldest-to-newest. The moving-average fields are derived and only
// populated once enough history exists to compute them.
type KLineBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Amount float64
	PctChg *float64

	MA5         *float64
	MA10        *float64
	MA20        *float64
	VolumeRatio *float64
}

// KLineSeries is a finite, ordered sequence of bars for one symbol.
type KLineSeries struct {
	Code   string
	Source QuoteSource
	Bars   []KLineBar
}
