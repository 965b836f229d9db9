package marketdata

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mkorolev/coindeck/internal/domain"
)

// BinanceFeed implements Feed on top of the Binance REST API.
type BinanceFeed struct {
	client *binance.Client
}

// NewBinanceFeed creates a Binance-backed feed.
func NewBinanceFeed(client *binance.Client) *BinanceFeed {
	return &BinanceFeed{client: client}
}

// FetchTickerBatch fetches 24h ticker statistics for the given symbols.
func (f *BinanceFeed) FetchTickerBatch(ctx context.Context, symbols []string) ([]domain.PriceTick, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	stats, err := f.client.NewListPriceChangeStatsService().Symbols(symbols).Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch ticker batch from binance")
	}

	ticks := make([]domain.PriceTick, 0, len(stats))
	for _, s := range stats {
		price, err := decimal.NewFromString(s.LastPrice)
		if err != nil {
			return nil, errors.Wrapf(err, "parse last price for %s", s.Symbol)
		}
		change, err := decimal.NewFromString(s.PriceChangePercent)
		if err != nil {
			return nil, errors.Wrapf(err, "parse 24h change for %s", s.Symbol)
		}
		volume, err := decimal.NewFromString(s.QuoteVolume)
		if err != nil {
			return nil, errors.Wrapf(err, "parse 24h volume for %s", s.Symbol)
		}
		ticks = append(ticks, domain.PriceTick{
			Symbol:    s.Symbol,
			Price:     price,
			Change24h: change,
			Volume24h: volume,
			Timestamp: time.Unix(0, s.CloseTime*int64(time.Millisecond)),
		})
	}
	return ticks, nil
}

// FetchMarketList fetches the exchange symbol catalogue. Rank follows
// the listing order returned by the exchange.
func (f *BinanceFeed) FetchMarketList(ctx context.Context) ([]domain.MarketInfo, error) {
	info, err := f.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch market list from binance")
	}

	markets := make([]domain.MarketInfo, 0, len(info.Symbols))
	for i, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		markets = append(markets, domain.MarketInfo{
			Symbol:      s.Symbol,
			DisplayName: s.BaseAsset + "/" + s.QuoteAsset,
			Rank:        i + 1,
		})
	}
	return markets, nil
}
