package indicators

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closesFromFloats(values ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func rampCloses(n int, start, step float64) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		out[i] = decimal.NewFromFloat(start + float64(i)*step)
	}
	return out
}

func TestRSI_NeutralBelowWindow(t *testing.T) {
	closes := closesFromFloats(100, 101, 102)
	assert.True(t, RSI(closes, RSIPeriod).Equal(decimal.NewFromInt(50)))
}

func TestRSI_HundredWhenNoLosses(t *testing.T) {
	closes := rampCloses(30, 100, 1)
	assert.True(t, RSI(closes, RSIPeriod).Equal(decimal.NewFromInt(100)))
}

func TestRSI_Bounded(t *testing.T) {
	closes := closesFromFloats(
		100, 102, 101, 103, 102, 105, 104, 106, 103, 107,
		105, 108, 106, 109, 107, 110, 108, 111, 109, 112,
	)
	rsi := RSI(closes, RSIPeriod)
	assert.True(t, rsi.GreaterThan(decimal.Zero))
	assert.True(t, rsi.LessThanOrEqual(decimal.NewFromInt(100)))
}

func TestMovingAverage_FallsBackBelowWindow(t *testing.T) {
	closes := closesFromFloats(100, 110)
	assert.True(t, MovingAverage(closes, 20).Equal(decimal.NewFromInt(110)))
	assert.True(t, MovingAverage(nil, 20).Equal(decimal.Zero))
}

func TestMovingAverage_ConstantSeries(t *testing.T) {
	closes := make([]decimal.Decimal, 60)
	for i := range closes {
		closes[i] = decimal.NewFromInt(42)
	}
	ma := MovingAverage(closes, 20)
	diff := ma.Sub(decimal.NewFromInt(42)).Abs()
	assert.True(t, diff.LessThan(decimal.NewFromFloat(0.0001)), "got %s", ma)
}

func TestMACD_ZeroBelowWindow(t *testing.T) {
	line, signal, histogram := MACD(closesFromFloats(100, 101, 102))
	assert.True(t, line.IsZero())
	assert.True(t, signal.IsZero())
	assert.True(t, histogram.IsZero())
}

func TestMACD_HistogramIsLineMinusSignal(t *testing.T) {
	closes := rampCloses(80, 100, 0.5)
	line, signal, histogram := MACD(closes)
	assert.True(t, histogram.Equal(line.Sub(signal)))
}

func TestBollinger_DefaultBandsBelowWindow(t *testing.T) {
	current := decimal.NewFromInt(200)
	upper, middle, lower := Bollinger(closesFromFloats(199, 200), current)
	assert.True(t, middle.Equal(current))
	assert.True(t, upper.Equal(decimal.NewFromInt(204)))
	assert.True(t, lower.Equal(decimal.NewFromInt(196)))
}

func TestBollinger_Ordering(t *testing.T) {
	closes := closesFromFloats(
		100, 102, 99, 103, 101, 104, 98, 105, 102, 106,
		100, 107, 103, 108, 101, 109, 104, 110, 102, 111,
		105, 112, 103, 113, 106,
	)
	upper, middle, lower := Bollinger(closes, closes[len(closes)-1])
	assert.True(t, upper.GreaterThan(middle))
	assert.True(t, middle.GreaterThan(lower))
}

func TestCompute_FullSet(t *testing.T) {
	closes := rampCloses(80, 100, 0.25)
	set := Compute(closes)

	require.False(t, set.MA20.IsZero())
	require.False(t, set.MA60.IsZero())
	assert.True(t, set.RSI14.GreaterThan(decimal.Zero))
	assert.True(t, set.BollingerUpper.GreaterThanOrEqual(set.BollingerMid))
	assert.True(t, set.BollingerMid.GreaterThanOrEqual(set.BollingerLower))
	assert.True(t, set.MACDHistogram.Equal(set.MACD.Sub(set.MACDSignal)))
}

func TestCompute_EmptyHistory(t *testing.T) {
	set := Compute(nil)
	assert.True(t, set.RSI14.Equal(decimal.NewFromInt(50)))
	assert.True(t, set.MA20.IsZero())
	assert.True(t, set.MACD.IsZero())
}
