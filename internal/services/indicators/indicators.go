// Package indicators computes the technical indicators attached to
// cached price entries. It wraps the cinar/indicator library for the
// streaming math and supplies neutral defaults when the price history
// is shorter than an indicator's warmup window.
package indicators

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/shopspring/decimal"

	"github.com/mkorolev/coindeck/internal/domain"
)

const (
	// RSIPeriod is the default RSI window.
	RSIPeriod = 14
	// BollingerWindow is the Bollinger band SMA window.
	BollingerWindow = 20
	// macdSlowPeriod is the longest EMA inside MACD.
	macdSlowPeriod = 26
)

var (
	neutralRSI = decimal.NewFromInt(50)
	maxRSI     = decimal.NewFromInt(100)

	bandOffset = decimal.NewFromFloat(0.02)
)

// RSI computes the relative strength index over the trailing period
// deltas. It returns a neutral 50 when there is not enough history and
// 100 when the average loss is zero.
func RSI(closes []decimal.Decimal, period int) decimal.Decimal {
	if len(closes) < period+1 {
		return neutralRSI
	}

	lossSeen := false
	for i := len(closes) - period; i < len(closes); i++ {
		if closes[i].LessThan(closes[i-1]) {
			lossSeen = true
			break
		}
	}
	if !lossSeen {
		return maxRSI
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	out := helper.ChanToSlice(rsi.Compute(helper.SliceToChan(decimalsToFloat64(closes))))
	if len(out) == 0 {
		return neutralRSI
	}
	return decimal.NewFromFloat(out[len(out)-1])
}

// MovingAverage computes a simple moving average over the trailing
// window. Below the window length it falls back to the latest close.
func MovingAverage(closes []decimal.Decimal, window int) decimal.Decimal {
	if len(closes) == 0 {
		return decimal.Zero
	}
	if len(closes) < window {
		return closes[len(closes)-1]
	}

	sma := trend.NewSmaWithPeriod[float64](window)
	out := helper.ChanToSlice(sma.Compute(helper.SliceToChan(decimalsToFloat64(closes))))
	if len(out) == 0 {
		return closes[len(closes)-1]
	}
	return decimal.NewFromFloat(out[len(out)-1])
}

// MACD computes the MACD line, its signal EMA and the histogram. Below
// the slow EMA window all three are zero.
func MACD(closes []decimal.Decimal) (line, signal, histogram decimal.Decimal) {
	if len(closes) < macdSlowPeriod {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}

	macd := trend.NewMacd[float64]()
	macdChan, signalChan := macd.Compute(helper.SliceToChan(decimalsToFloat64(closes)))

	// Both output channels must be drained concurrently or the
	// producer blocks.
	signalDone := make(chan []float64, 1)
	go func() {
		signalDone <- helper.ChanToSlice(signalChan)
	}()
	macdVals := helper.ChanToSlice(macdChan)
	signalVals := <-signalDone

	if len(macdVals) == 0 || len(signalVals) == 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}
	line = decimal.NewFromFloat(macdVals[len(macdVals)-1])
	signal = decimal.NewFromFloat(signalVals[len(signalVals)-1])
	return line, signal, line.Sub(signal)
}

// Bollinger computes the 20-period Bollinger bands (SMA plus/minus two
// standard deviations). Below the window the bands are centered on the
// current price at plus/minus 2%.
func Bollinger(closes []decimal.Decimal, current decimal.Decimal) (upper, middle, lower decimal.Decimal) {
	if len(closes) < BollingerWindow {
		offset := current.Mul(bandOffset)
		return current.Add(offset), current, current.Sub(offset)
	}

	bb := volatility.NewBollingerBands[float64]()
	upperChan, middleChan, lowerChan := bb.Compute(helper.SliceToChan(decimalsToFloat64(closes)))

	middleDone := make(chan []float64, 1)
	lowerDone := make(chan []float64, 1)
	go func() { middleDone <- helper.ChanToSlice(middleChan) }()
	go func() { lowerDone <- helper.ChanToSlice(lowerChan) }()
	upperVals := helper.ChanToSlice(upperChan)
	middleVals := <-middleDone
	lowerVals := <-lowerDone

	if len(upperVals) == 0 || len(middleVals) == 0 || len(lowerVals) == 0 {
		offset := current.Mul(bandOffset)
		return current.Add(offset), current, current.Sub(offset)
	}
	return decimal.NewFromFloat(upperVals[len(upperVals)-1]),
		decimal.NewFromFloat(middleVals[len(middleVals)-1]),
		decimal.NewFromFloat(lowerVals[len(lowerVals)-1])
}

// Compute derives the full indicator set for a price history window.
// The last element of closes is treated as the current price.
func Compute(closes []decimal.Decimal) domain.IndicatorSet {
	current := decimal.Zero
	if len(closes) > 0 {
		current = closes[len(closes)-1]
	}

	macdLine, macdSignal, macdHistogram := MACD(closes)
	upper, middle, lower := Bollinger(closes, current)

	return domain.IndicatorSet{
		RSI14:          RSI(closes, RSIPeriod),
		MACD:           macdLine,
		MACDSignal:     macdSignal,
		MACDHistogram:  macdHistogram,
		MA20:           MovingAverage(closes, 20),
		MA60:           MovingAverage(closes, 60),
		BollingerUpper: upper,
		BollingerMid:   middle,
		BollingerLower: lower,
	}
}

func decimalsToFloat64(values []decimal.Decimal) []float64 {
	result := make([]float64, len(values))
	for i, v := range values {
		result[i], _ = v.Float64()
	}
	return result
}
