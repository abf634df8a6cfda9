// Package memory is the reference Valuator adapter: an allegro/bigcache
// in-memory TTL cache in front of a pluggable price source. Concrete
// prices are host-supplied and non-normative; the default price source
// is a deterministic placeholder suitable only for demos and tests.
package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/big"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	aggregator "github.com/nyxfolio/portfolio-aggregator"
	"github.com/sirupsen/logrus"
)

// PriceSource supplies the current price of one symbol in currency. Real
// deployments inject a source backed by a market data feed.
type PriceSource func(ctx context.Context, symbol, currency string) (*big.Rat, error)

// demoExchangeRates are static, non-normative conversion factors used by
// ConvertValue when no richer FX source is wired in.
var demoExchangeRates = map[string]float64{
	"USD:EUR": 0.92,
	"USD:GBP": 0.78,
	"EUR:USD": 1.09,
	"GBP:USD": 1.28,
}

// Valuator caches prices from source for ttl.
type Valuator struct {
	cache  *bigcache.BigCache
	source PriceSource
	log    logrus.FieldLogger
}

// New builds a Valuator backed by an in-memory cache with the given TTL.
// source may be nil to fall back to DemoPriceSource.
func New(ctx context.Context, ttl time.Duration, source PriceSource, log logrus.FieldLogger) (*Valuator, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	cache, err := bigcache.New(ctx, bigcache.DefaultConfig(ttl))
	if err != nil {
		return nil, fmt.Errorf("valuator: init cache: %w", err)
	}
	if source == nil {
		source = DemoPriceSource
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Valuator{cache: cache, source: source, log: log}, nil
}

// DemoPriceSource derives a deterministic, plausible-looking price from a
// hash of the symbol. It carries no market meaning.
func DemoPriceSource(ctx context.Context, symbol, currency string) (*big.Rat, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToUpper(symbol)))
	cents := int64(h.Sum32()%10_000_00) + 1
	return big.NewRat(cents, 100), nil
}

func cacheKey(symbol, currency string) string {
	return strings.ToUpper(symbol) + ":" + strings.ToUpper(currency)
}

// GetPrice returns the current cached (or freshly fetched) price for
// symbol in currency.
func (v *Valuator) GetPrice(ctx context.Context, symbol, currency string) (aggregator.Price, error) {
	key := cacheKey(symbol, currency)
	if cached, err := v.cache.Get(key); err == nil {
		value, ok := new(big.Rat).SetString(string(cached))
		if ok {
			return aggregator.Price{Value: value, Currency: currency, Timestamp: time.Now(), Source: "memory-cache"}, nil
		}
	}

	value, err := v.source(ctx, symbol, currency)
	if err != nil {
		return aggregator.Price{}, fmt.Errorf("valuator: fetch price for %s: %w", symbol, err)
	}
	if err := v.cache.Set(key, []byte(value.RatString())); err != nil {
		v.log.WithError(err).WithField("symbol", symbol).Warn("valuator: cache write failed")
	}
	return aggregator.Price{Value: value, Currency: currency, Timestamp: time.Now(), Source: "live"}, nil
}

// GetBatchPrices returns GetPrice for each of symbols, skipping any that
// fail individually rather than failing the whole batch.
func (v *Valuator) GetBatchPrices(ctx context.Context, symbols []string, currency string) (map[string]aggregator.Price, error) {
	out := make(map[string]aggregator.Price, len(symbols))
	for _, symbol := range symbols {
		price, err := v.GetPrice(ctx, symbol, currency)
		if err != nil {
			v.log.WithError(err).WithField("symbol", symbol).Warn("valuator: skipping symbol in batch")
			continue
		}
		out[symbol] = price
	}
	return out, nil
}

// ConvertValue converts amount from one currency to another using a
// static, non-normative rate table. Same-currency conversion is exact.
func (v *Valuator) ConvertValue(ctx context.Context, amount *big.Rat, from, to string) (*big.Rat, error) {
	if from == to {
		return new(big.Rat).Set(amount), nil
	}
	rate, ok := demoExchangeRates[strings.ToUpper(from)+":"+strings.ToUpper(to)]
	if !ok {
		return nil, aggregator.NewInvalidInput("currency", fmt.Sprintf("no conversion rate from %s to %s", from, to))
	}
	rateRat := new(big.Rat).SetFloat64(rate)
	if rateRat == nil {
		return nil, aggregator.NewInvalidInput("currency", "invalid conversion rate")
	}
	return new(big.Rat).Mul(amount, rateRat), nil
}

// InvalidateCache drops any cached prices for the given symbols across
// all currencies. Since the cache key includes currency, this is a
// best-effort sweep rather than a precise invalidation.
func (v *Valuator) InvalidateCache(symbols []string) error {
	for _, symbol := range symbols {
		for _, currency := range []string{"USD", "EUR", "GBP"} {
			_ = v.cache.Delete(cacheKey(symbol, currency))
		}
	}
	return nil
}
