package market

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// AuxiliaryProvider supplies the optional on-chain/sentiment/macro data
// MarketState carries. Any method may fail (provider down, rate
// limited, not configured); GetMarketState falls back to the domain
// package's Neutral* defaults on failure (spec.md §4.7: "graceful
// fallback to neutral defaults when unavailable").
type AuxiliaryProvider interface {
	FetchOnChain(ctx context.Context, symbol string) (domain.OnChainData, error)
	FetchSentiment(ctx context.Context, symbol string) (domain.SentimentData, error)
	FetchMacro(ctx context.Context) (domain.MacroData, error)
}

// coinGeckoSymbolToID maps the exchange trading symbol prefix to the
// CoinGecko coin id the cached client expects.
var coinGeckoSymbolToID = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
	"SOL": "solana",
	"BNB": "binancecoin",
}

// CoinGeckoAuxiliaryProvider derives sentiment and on-chain proxies
// from CoinGecko's public coin/market endpoints via the teacher's
// cached client (internal/market/cache.go). It has no macro data
// source — spec.md's macro fields (DXY, SP500, gold, yield, VIX) are
// equity/FX-market data CoinGecko does not carry, so FetchMacro always
// returns an error and GetMarketState falls back to NeutralMacro.
type CoinGeckoAuxiliaryProvider struct {
	client     *CachedCoinGeckoClient
	priceCache *RedisPriceCache
	log        zerolog.Logger
}

// NewCoinGeckoAuxiliaryProvider builds a provider over an already
// Redis-cached CoinGecko client. priceCache may be nil (every lookup
// becomes a miss), in which case FetchOnChain's momentum proxy is
// always zero.
func NewCoinGeckoAuxiliaryProvider(client *CachedCoinGeckoClient, priceCache *RedisPriceCache, log zerolog.Logger) *CoinGeckoAuxiliaryProvider {
	return &CoinGeckoAuxiliaryProvider{client: client, priceCache: priceCache, log: log.With().Str("component", "auxiliary_provider").Logger()}
}

func coinIDFor(symbol string) (string, bool) {
	for prefix, id := range coinGeckoSymbolToID {
		if len(symbol) >= len(prefix) && symbol[:len(prefix)] == prefix {
			return id, true
		}
	}
	return "", false
}

// FetchOnChain approximates exchange-net-flow/whale activity from
// 24h market-cap and volume deltas on the coin-info payload; a
// genuine on-chain indexer is out of scope for this spec (no
// blockchain-node or indexer dependency appears anywhere in the
// example pack).
func (p *CoinGeckoAuxiliaryProvider) FetchOnChain(ctx context.Context, symbol string) (domain.OnChainData, error) {
	id, ok := coinIDFor(symbol)
	if !ok {
		return domain.OnChainData{}, errUnsupportedSymbol(symbol)
	}

	info, err := p.client.GetCoinInfo(ctx, id)
	if err != nil {
		return domain.OnChainData{}, err
	}

	var netFlow float64
	if v, ok := info.MarketData["market_cap_change_percentage_24h"].(float64); ok {
		netFlow = v
	}

	stablecoinDelta := p.spotPriceMomentum(ctx, id)

	return domain.OnChainData{ExchangeNetFlow: netFlow, StablecoinMintDiff: stablecoinDelta}, nil
}

// spotPriceMomentum compares the current USD spot price against the
// last value this process observed (kept in priceCache across ticks)
// as a cheap proxy for stablecoin-mint-driven price pressure; a real
// stablecoin-supply indexer is out of scope (see FetchOnChain's
// grounding note).
func (p *CoinGeckoAuxiliaryProvider) spotPriceMomentum(ctx context.Context, coinID string) float64 {
	result, err := p.client.GetPrice(ctx, coinID, "usd")
	if err != nil {
		return 0
	}

	prev, ok := p.priceCache.Get(ctx, coinID, "usd")
	_ = p.priceCache.Set(ctx, coinID, "usd", result.Price)
	if !ok || prev == 0 {
		return 0
	}
	return (result.Price - prev) / prev
}

// FetchSentiment maps CoinGecko's sentiment-votes-up-percentage
// (returned in the raw coin-info market data, when present) onto the
// 0-100 fear/greed scale MarketState expects.
func (p *CoinGeckoAuxiliaryProvider) FetchSentiment(ctx context.Context, symbol string) (domain.SentimentData, error) {
	id, ok := coinIDFor(symbol)
	if !ok {
		return domain.SentimentData{}, errUnsupportedSymbol(symbol)
	}

	info, err := p.client.GetCoinInfo(ctx, id)
	if err != nil {
		return domain.SentimentData{}, err
	}

	fearGreed := domain.NeutralSentiment().FearGreed
	if v, ok := info.MarketData["sentiment_votes_up_percentage"].(float64); ok {
		fearGreed = v
	}

	return domain.SentimentData{FearGreed: fearGreed}, nil
}

func (p *CoinGeckoAuxiliaryProvider) FetchMacro(ctx context.Context) (domain.MacroData, error) {
	return domain.MacroData{}, errNoMacroSource
}

type marketError string

func (e marketError) Error() string { return string(e) }

const errNoMacroSource = marketError("no macro data source configured")

func errUnsupportedSymbol(symbol string) error {
	return marketError("no auxiliary-data mapping for symbol " + symbol)
}
