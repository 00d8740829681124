// Package domain holds the shared data model that flows between the
// Market-Data Service, Decision Coordinator, Risk Gateway, Execution
// Adapter and Audit components: MarketState, AgentOutput, TradeDecision,
// OrderRequest/Order, Position and AccountState.
package domain

import "time"

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// OHLCVWindow is a fixed-size slice of candles for one timeframe.
type OHLCVWindow struct {
	Timeframe string   `json:"timeframe"` // "5m", "15m", "1h", "4h"
	Candles   []Candle `json:"candles"`
}

// OrderBookLevel is one price/size level of the top-N book.
type OrderBookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBookTop is the top-N bid/ask levels at snapshot time.
type OrderBookTop struct {
	Bids []OrderBookLevel `json:"bids"`
	Asks []OrderBookLevel `json:"asks"`
}

// Indicators holds the normative technical indicator set computed by the
// Market-Data Service (spec.md §4.7). Formulae are fixed so backtest and
// live runs produce identical numbers from identical inputs.
type Indicators struct {
	EMAFast     float64 `json:"ema_fast"`
	EMASlow     float64 `json:"ema_slow"`
	RSI         float64 `json:"rsi"`
	MACD        float64 `json:"macd"`
	MACDSignal  float64 `json:"macd_signal"`
	MACDHist    float64 `json:"macd_hist"`
	BollUpper   float64 `json:"boll_upper"`
	BollMiddle  float64 `json:"boll_middle"`
	BollLower   float64 `json:"boll_lower"`
	ATR         float64 `json:"atr"`
	VolumeRatio float64 `json:"volume_ratio"`
}

// OnChainData is optional, defaults to neutral zero values when the
// upstream provider is unavailable (spec.md §4.7 graceful fallback).
type OnChainData struct {
	ExchangeNetFlow    float64 `json:"exchange_net_flow"`
	WhaleTxCount       int     `json:"whale_tx_count"`
	StablecoinMintDiff float64 `json:"stablecoin_mint_delta"`
}

// SentimentData is optional; neutral default is FearGreed=50, zero scores.
type SentimentData struct {
	FearGreed    float64 `json:"fear_greed"`
	SocialScore  float64 `json:"social_score"`
	TwitterVolume float64 `json:"twitter_volume"`
}

// MacroData is optional; neutral default is all-zero deltas.
type MacroData struct {
	DXY            float64 `json:"dxy"`
	SP500Change    float64 `json:"sp500_change"`
	Gold           float64 `json:"gold"`
	TenYearYield   float64 `json:"ten_year_yield"`
	VIX            float64 `json:"vix"`
}

// NeutralOnChain, NeutralSentiment and NeutralMacro are the graceful
// fallback values used by the Market-Data Service when a provider is
// unavailable (spec.md §4.7).
func NeutralOnChain() OnChainData   { return OnChainData{} }
func NeutralSentiment() SentimentData { return SentimentData{FearGreed: 50} }
func NeutralMacro() MacroData       { return MacroData{} }

// MarketState is the immutable per-tick snapshot passed by value to every
// agent. BarIndex identifies the simulation bar it was sampled from; the
// Simulated adapter uses it to enforce the look-ahead invariant
// (spec.md §4.2, §8 property 6).
type MarketState struct {
	Symbol        string        `json:"symbol"`
	Price         float64       `json:"price"`
	Timestamp     time.Time     `json:"timestamp"`
	BarIndex      int64         `json:"bar_index"`
	Windows       []OHLCVWindow `json:"windows"` // 5m/15m/1h/4h
	OrderBook     OrderBookTop  `json:"orderbook"`
	FundingRate   float64       `json:"funding_rate"`
	OpenInterest  float64       `json:"open_interest"`
	OIDelta       float64       `json:"open_interest_delta"`
	Indicators    Indicators    `json:"indicators"`
	OnChain       *OnChainData  `json:"on_chain,omitempty"`
	Sentiment     *SentimentData `json:"sentiment,omitempty"`
	Macro         *MacroData    `json:"macro,omitempty"`
}

// Window returns the candle window for the given timeframe, if present.
func (m MarketState) Window(timeframe string) (OHLCVWindow, bool) {
	for _, w := range m.Windows {
		if w.Timeframe == timeframe {
			return w, true
		}
	}
	return OHLCVWindow{}, false
}
