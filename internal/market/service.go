// Package market implements the Market-Data Service (spec.md §4.7):
// OHLCV fetch/cache and deterministic indicator computation feeding
// the Decision Coordinator's agents.
package market

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/cryptoctl/tradeengine/internal/domain"
	"github.com/cryptoctl/tradeengine/internal/indicators"
)

const orderBookDepth = 20
const candleLimit = 200

// Service assembles a MarketState per tick. Concurrent GetMarketState
// calls for the same (symbol, timeframe) collapse to one upstream
// fetch via singleflight, per spec.md §4.7's "support multi-agent
// re-use within a single tick".
type Service struct {
	fetcher CandleFetcher
	cache   *OHLCVCache
	aux     AuxiliaryProvider
	group   singleflight.Group
	log     zerolog.Logger
}

// NewService wires a candle fetcher, OHLCV cache and auxiliary-data
// provider into a Market-Data Service. aux may be nil, in which case
// every MarketState carries the neutral defaults.
func NewService(fetcher CandleFetcher, cache *OHLCVCache, aux AuxiliaryProvider, log zerolog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		cache:   cache,
		aux:     aux,
		log:     log.With().Str("component", "market_service").Logger(),
	}
}

// GetMarketState builds the immutable per-tick snapshot for symbol at
// barIndex, the bar counter the Execution Adapter's look-ahead check
// consumes.
func (s *Service) GetMarketState(ctx context.Context, symbol string, barIndex int64) (domain.MarketState, error) {
	windows, err := s.fetchAllWindows(ctx, symbol)
	if err != nil {
		return domain.MarketState{}, fmt.Errorf("fetch ohlcv windows: %w", err)
	}

	primary, ok := windowFor(windows, "5m")
	if !ok || len(primary.Candles) == 0 {
		return domain.MarketState{}, fmt.Errorf("no 5m candles available for %s", symbol)
	}
	latest := primary.Candles[len(primary.Candles)-1]

	book, err := s.fetcher.FetchOrderBookTop(ctx, symbol, orderBookDepth)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("orderbook fetch failed, using empty top")
	}

	fundingRate, _ := s.fetcher.FetchFundingRate(ctx, symbol)
	openInterest, _ := s.fetcher.FetchOpenInterest(ctx, symbol)

	indSet := indicators.Compute(primary.Candles)

	state := domain.MarketState{
		Symbol:       symbol,
		Price:        latest.Close,
		Timestamp:    latest.OpenTime,
		BarIndex:     barIndex,
		Windows:      windows,
		OrderBook:    book,
		FundingRate:  fundingRate,
		OpenInterest: openInterest,
		Indicators:   indSet,
	}

	s.attachAuxiliary(ctx, symbol, &state)

	return state, nil
}

func (s *Service) fetchAllWindows(ctx context.Context, symbol string) ([]domain.OHLCVWindow, error) {
	windows := make([]domain.OHLCVWindow, 0, len(Timeframes))
	for _, tf := range Timeframes {
		window, err := s.fetchWindow(ctx, symbol, tf)
		if err != nil {
			return nil, fmt.Errorf("timeframe %s: %w", tf, err)
		}
		windows = append(windows, window)
	}
	return windows, nil
}

func (s *Service) fetchWindow(ctx context.Context, symbol, timeframe string) (domain.OHLCVWindow, error) {
	if cached, ok := s.cache.Get(ctx, symbol, timeframe); ok {
		return cached, nil
	}

	groupKey := symbol + "|" + timeframe
	result, err, _ := s.group.Do(groupKey, func() (any, error) {
		candles, err := s.fetcher.FetchCandles(ctx, symbol, timeframe, candleLimit)
		if err != nil {
			return domain.OHLCVWindow{}, err
		}
		window := domain.OHLCVWindow{Timeframe: timeframe, Candles: candles}
		s.cache.Set(ctx, symbol, window, BarPeriod(timeframe))
		return window, nil
	})
	if err != nil {
		return domain.OHLCVWindow{}, err
	}
	return result.(domain.OHLCVWindow), nil
}

// attachAuxiliary fills on-chain/sentiment/macro data, falling back to
// the neutral defaults on any provider error or absence (spec.md §4.7).
func (s *Service) attachAuxiliary(ctx context.Context, symbol string, state *domain.MarketState) {
	onChain := domain.NeutralOnChain()
	sentiment := domain.NeutralSentiment()
	macro := domain.NeutralMacro()

	if s.aux != nil {
		if v, err := s.aux.FetchOnChain(ctx, symbol); err == nil {
			onChain = v
		} else {
			s.log.Debug().Err(err).Str("symbol", symbol).Msg("on-chain fetch failed, using neutral default")
		}

		if v, err := s.aux.FetchSentiment(ctx, symbol); err == nil {
			sentiment = v
		} else {
			s.log.Debug().Err(err).Str("symbol", symbol).Msg("sentiment fetch failed, using neutral default")
		}

		if v, err := s.aux.FetchMacro(ctx); err == nil {
			macro = v
		} else {
			s.log.Debug().Err(err).Msg("macro fetch failed, using neutral default")
		}
	}

	state.OnChain = &onChain
	state.Sentiment = &sentiment
	state.Macro = &macro
}

func windowFor(windows []domain.OHLCVWindow, timeframe string) (domain.OHLCVWindow, bool) {
	for _, w := range windows {
		if w.Timeframe == timeframe {
			return w, true
		}
	}
	return domain.OHLCVWindow{}, false
}
