package cryptofeed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"polymarket-mm/internal/events"
)

// Crypto symbols supported by the adapters below. Grounded on
// original_source/src/exchange_listeners/crypto_models.rs's Crypto enum.
const (
	BTC = "BTC"
	ETH = "ETH"
	XRP = "XRP"
	SOL = "SOL"
)

const (
	exchangeBinance        = "Binance"
	exchangeCoinbaseLegacy = "CoinbaseLegacy"
	exchangeBitstamp       = "Bitstamp"

	instrumentSpot = "Spot"
	instrumentPerp = "Perpetual"

	depthL1 = "L1"
)

func clearEventFor(exchange, instrument, crypto string) events.Event {
	return events.Event{
		Kind:       events.KindCryptoPriceClear,
		Exchange:   exchange,
		Instrument: instrument,
		Crypto:     crypto,
	}
}

// binanceBookTicker mirrors Binance's @bookTicker stream payload.
// Grounded on crypto_models.rs's BinanceBookTicker.
type binanceBookTicker struct {
	Symbol   string `json:"s"`
	BestBid  string `json:"b"`
	BestBidQ string `json:"B"`
	BestAsk  string `json:"a"`
	BestAskQ string `json:"A"`
}

// NewBinanceAdapter builds an L1 best-bid/ask adapter for Binance spot or
// perpetual futures. Grounded on crypto_listeners.rs's binance_listener.
func NewBinanceAdapter(crypto string, isPerp bool, sender events.CountingSender, logger *slog.Logger) *Adapter {
	instrument := instrumentSpot
	baseURL := "wss://stream.binance.com:9443/ws/"
	namePrefix := "Spot"
	if isPerp {
		instrument = instrumentPerp
		baseURL = "wss://fstream.binance.com/ws/"
		namePrefix = "Perp"
	}
	symbol := strings.ToLower(crypto) + "usdt"
	url := baseURL + symbol + "@bookTicker"
	name := fmt.Sprintf("Binance_%s_%s", crypto, namePrefix)

	parse := func(frame []byte) (events.Event, bool, error) {
		var ticker binanceBookTicker
		if err := json.Unmarshal(frame, &ticker); err != nil {
			return events.Event{}, false, err
		}
		bidPrice, err1 := strconv.ParseFloat(ticker.BestBid, 64)
		bidSize, err2 := strconv.ParseFloat(ticker.BestBidQ, 64)
		askPrice, err3 := strconv.ParseFloat(ticker.BestAsk, 64)
		askSize, err4 := strconv.ParseFloat(ticker.BestAskQ, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return events.Event{}, false, nil
		}
		return events.Event{
			Kind:       events.KindCryptoPrice,
			Exchange:   exchangeBinance,
			Instrument: instrument,
			Crypto:     crypto,
			Depth:      depthL1,
			CryptoPrice: events.CryptoPriceUpdate{
				BidPrice: bidPrice, BidSize: bidSize,
				AskPrice: askPrice, AskSize: askSize,
			},
		}, true, nil
	}

	return NewAdapter(name, url, "", clearEventFor(exchangeBinance, instrument, crypto), parse, sender, logger)
}

// coinbaseLegacyTicker mirrors the subset of Coinbase Exchange's "ticker"
// channel message this adapter needs. Grounded on crypto_models.rs's
// CoinbaseTicker / CoinbaseLegacyMsg.
type coinbaseLegacyTicker struct {
	Type     string `json:"type"`
	Price    string `json:"price"`
	BestBid  string `json:"best_bid"`
	BestAsk  string `json:"best_ask"`
	BidSize  string `json:"best_bid_size"`
	AskSize  string `json:"best_ask_size"`
}

// NewCoinbaseLegacyAdapter builds an L1 adapter for Coinbase Exchange's
// public ticker+heartbeat channel. Grounded on crypto_listeners.rs's
// coinbase_legacy_listener.
func NewCoinbaseLegacyAdapter(crypto string, sender events.CountingSender, logger *slog.Logger) *Adapter {
	productID := crypto + "-USD"
	url := "wss://ws-feed.exchange.coinbase.com"
	subscribeMsg := fmt.Sprintf(
		`{"type":"subscribe","product_ids":["%s"],"channels":["ticker","heartbeat"]}`,
		productID,
	)
	name := fmt.Sprintf("Coinbase_Legacy_%s_Spot", crypto)

	parse := func(frame []byte) (events.Event, bool, error) {
		var msg coinbaseLegacyTicker
		if err := json.Unmarshal(frame, &msg); err != nil {
			return events.Event{}, false, err
		}
		if msg.Type != "ticker" {
			return events.Event{}, false, nil
		}
		bidPrice, err1 := strconv.ParseFloat(msg.BestBid, 64)
		askPrice, err2 := strconv.ParseFloat(msg.BestAsk, 64)
		if err1 != nil || err2 != nil {
			return events.Event{}, false, nil
		}
		bidSize, _ := strconv.ParseFloat(msg.BidSize, 64)
		askSize, _ := strconv.ParseFloat(msg.AskSize, 64)
		return events.Event{
			Kind:       events.KindCryptoPrice,
			Exchange:   exchangeCoinbaseLegacy,
			Instrument: instrumentSpot,
			Crypto:     crypto,
			Depth:      depthL1,
			CryptoPrice: events.CryptoPriceUpdate{
				BidPrice: bidPrice, BidSize: bidSize,
				AskPrice: askPrice, AskSize: askSize,
			},
		}, true, nil
	}

	return NewAdapter(name, url, subscribeMsg, clearEventFor(exchangeCoinbaseLegacy, instrumentSpot, crypto), parse, sender, logger)
}

// bitstampBookMsg mirrors Bitstamp's order_book_<symbol>usd channel data
// event. Grounded on crypto_models.rs's BitstampData / BitstampMsg.
type bitstampBookMsg struct {
	Event string `json:"event"`
	Data  struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	} `json:"data"`
}

// NewBitstampAdapter builds an L1 adapter derived from Bitstamp's live order
// book top-of-book. Grounded on crypto_listeners.rs's bitstamp_listener.
func NewBitstampAdapter(crypto string, sender events.CountingSender, logger *slog.Logger) *Adapter {
	symbol := strings.ToLower(crypto)
	url := "wss://ws.bitstamp.net"
	subscribeMsg := fmt.Sprintf(
		`{"event":"bts:subscribe","data":{"channel":"order_book_%susd"}}`,
		symbol,
	)
	name := fmt.Sprintf("Bitstamp_%s_Spot", crypto)

	parse := func(frame []byte) (events.Event, bool, error) {
		var msg bitstampBookMsg
		if err := json.Unmarshal(frame, &msg); err != nil {
			return events.Event{}, false, err
		}
		if msg.Event != "data" || len(msg.Data.Bids) == 0 || len(msg.Data.Asks) == 0 {
			return events.Event{}, false, nil
		}
		bidPrice, err1 := strconv.ParseFloat(msg.Data.Bids[0][0], 64)
		askPrice, err2 := strconv.ParseFloat(msg.Data.Asks[0][0], 64)
		if err1 != nil || err2 != nil {
			return events.Event{}, false, nil
		}
		bidSize, _ := strconv.ParseFloat(msg.Data.Bids[0][1], 64)
		askSize, _ := strconv.ParseFloat(msg.Data.Asks[0][1], 64)
		return events.Event{
			Kind:       events.KindCryptoPrice,
			Exchange:   exchangeBitstamp,
			Instrument: instrumentSpot,
			Crypto:     crypto,
			Depth:      depthL1,
			CryptoPrice: events.CryptoPriceUpdate{
				BidPrice: bidPrice, BidSize: bidSize,
				AskPrice: askPrice, AskSize: askSize,
			},
		}, true, nil
	}

	return NewAdapter(name, url, subscribeMsg, clearEventFor(exchangeBitstamp, instrumentSpot, crypto), parse, sender, logger)
}
