// Package feed supplies option chain snapshots from the NSE endpoint
// or recorded files.
package feed

import (
	"context"
	"sort"
	"time"

	"options-analyzer/internal/errors"
	"options-analyzer/internal/models"
)

// ChainSource produces one snapshot per call. Implementations must be
// safe to call repeatedly from a single goroutine.
type ChainSource interface {
	// Fetch retrieves the current chain for the source's symbol.
	Fetch(ctx context.Context) (*models.OptionChainSnapshot, error)
	// Close releases underlying resources.
	Close() error
}

// nseExpiryFormat is the date layout the NSE payload uses.
const nseExpiryFormat = "02-Jan-2006"

// chainPayload mirrors the NSE option-chain-indices JSON.
type chainPayload struct {
	Records struct {
		ExpiryDates     []string      `json:"expiryDates"`
		UnderlyingValue float64       `json:"underlyingValue"`
		Timestamp       string        `json:"timestamp"`
		Data            []chainRecord `json:"data"`
	} `json:"records"`
}

type chainRecord struct {
	StrikePrice float64      `json:"strikePrice"`
	ExpiryDate  string       `json:"expiryDate"`
	CE          *sidePayload `json:"CE"`
	PE          *sidePayload `json:"PE"`
}

// sidePayload mirrors one option leg in the NSE payload.
type sidePayload struct {
	OpenInterest         float64 `json:"openInterest"`
	ChangeInOpenInterest float64 `json:"changeinOpenInterest"`
	TotalTradedVolume    int64   `json:"totalTradedVolume"`
	ImpliedVolatility    float64 `json:"impliedVolatility"`
	LastPrice            float64 `json:"lastPrice"`
	BidQty               int64   `json:"bidQty"`
	BidPrice             float64 `json:"bidprice"`
	AskQty               int64   `json:"askQty"`
	AskPrice             float64 `json:"askPrice"`
}

// buildSnapshot converts the raw payload into a validated snapshot for
// the nearest expiry.
func buildSnapshot(symbol string, payload *chainPayload, prevClose float64, now time.Time, loc *time.Location) (*models.OptionChainSnapshot, error) {
	if len(payload.Records.ExpiryDates) == 0 {
		return nil, errors.NewFeedError("nse", symbol, "payload carries no expiry dates", nil)
	}

	expiry, err := nearestExpiry(payload.Records.ExpiryDates, now, loc)
	if err != nil {
		return nil, errors.NewFeedError("nse", symbol, "unparseable expiry dates", err)
	}
	expiryStr := expiry.Format(nseExpiryFormat)

	snap := &models.OptionChainSnapshot{
		Symbol:       symbol,
		Timestamp:    now,
		SpotPrice:    payload.Records.UnderlyingValue,
		PrevClose:    prevClose,
		ExpiryDate:   expiry,
		DaysToExpiry: daysBetween(now.In(loc), expiry),
	}

	for _, rec := range payload.Records.Data {
		if rec.ExpiryDate != expiryStr {
			continue
		}
		row := models.StrikeRow{StrikePrice: rec.StrikePrice}
		if rec.CE != nil {
			row.Call = quoteFrom(rec.CE)
		}
		if rec.PE != nil {
			row.Put = quoteFrom(rec.PE)
		}
		snap.Strikes = append(snap.Strikes, row)
	}

	snap.SortStrikes()
	if err := snap.Validate(); err != nil {
		return nil, errors.NewFeedError("nse", symbol, "invalid chain", err)
	}
	return snap, nil
}

func quoteFrom(p *sidePayload) *models.OptionQuote {
	return &models.OptionQuote{
		LTP:      p.LastPrice,
		OI:       int64(p.OpenInterest),
		OIChange: int64(p.ChangeInOpenInterest),
		Volume:   p.TotalTradedVolume,
		IV:       p.ImpliedVolatility,
		BidPrice: p.BidPrice,
		BidQty:   p.BidQty,
		AskPrice: p.AskPrice,
		AskQty:   p.AskQty,
	}
}

// nearestExpiry picks the earliest expiry on or after today.
func nearestExpiry(dates []string, now time.Time, loc *time.Location) (time.Time, error) {
	var parsed []time.Time
	for _, d := range dates {
		t, err := time.ParseInLocation(nseExpiryFormat, d, loc)
		if err != nil {
			return time.Time{}, err
		}
		parsed = append(parsed, t)
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].Before(parsed[j]) })

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	for _, t := range parsed {
		if !t.Before(today) {
			return t, nil
		}
	}
	// Every listed expiry is in the past; take the last one.
	return parsed[len(parsed)-1], nil
}

func daysBetween(now, expiry time.Time) int {
	a := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	b := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, now.Location())
	d := int(b.Sub(a).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
