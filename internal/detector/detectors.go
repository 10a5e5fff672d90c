package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ExistenceDetector checks whether the subject is known to any public
// registry at all. Absence is suspicious but never decisive: an
// unknown symbol or entity scores into the medium range, not critical,
// so absence of data alone cannot push a result past MEDIUM.
type ExistenceDetector struct {
	provider Provider
}

func NewExistenceDetector(p Provider) *ExistenceDetector {
	return &ExistenceDetector{provider: p}
}

func (d *ExistenceDetector) Name() string { return "existence" }

func (d *ExistenceDetector) Detect(ctx context.Context, req *domain.NormalizedRequest) (*domain.SubAnalysis, error) {
	start := time.Now()

	resp, err := d.provider.Query(ctx, "existence", subjectKey(req))
	if err != nil {
		return degraded(d.Name(), start, fmt.Sprintf("existence lookup: %v", err)), nil
	}

	if resp.Found {
		return ok(d.Name(), start, resp.Score*0.3, 90, map[string]any{
			"registered": true,
		}), nil
	}
	// unregistered: elevated but bounded
	return ok(d.Name(), start, 60, 70, map[string]any{
		"registered": false,
	}), nil
}

// ReputationDetector consults a breach/report database and folds in a
// sighting-velocity counter: the same identifier being checked over
// and over in a short window is itself a signal.
type ReputationDetector struct {
	provider Provider
	tenantID string
	counter  CounterFunc
}

func NewReputationDetector(p Provider, tenantID string, counter CounterFunc) *ReputationDetector {
	return &ReputationDetector{provider: p, tenantID: tenantID, counter: counter}
}

func (d *ReputationDetector) Name() string { return "reputation" }

func (d *ReputationDetector) Detect(ctx context.Context, req *domain.NormalizedRequest) (*domain.SubAnalysis, error) {
	start := time.Now()
	key := subjectKey(req)

	resp, err := d.provider.Query(ctx, "breach", key)
	if err != nil {
		return degraded(d.Name(), start, fmt.Sprintf("reputation lookup: %v", err)), nil
	}

	// live providers deliver JSON numbers, the simulator ints
	reports := 0
	switch n := resp.Attributes["reports"].(type) {
	case int:
		reports = n
	case float64:
		reports = int(n)
	}

	// report count drives the score, capped well below decisive
	score := float64(reports) * 15
	if score > 90 {
		score = 90
	}

	findings := map[string]any{
		"reports": reports,
		"listed":  resp.Found,
	}

	if d.counter != nil {
		if seen, cerr := d.counter(ctx, d.tenantID, "rep:"+key, time.Hour); cerr == nil {
			findings["sightings_1h"] = seen
			if seen > 10 {
				score += 10
			}
		}
	}

	return ok(d.Name(), start, score, 80, findings), nil
}

// MarketDataDetector inspects the trading activity series for the
// volume and price signature of a pump-and-dump, and cross-checks the
// symbol against a market data provider.
type MarketDataDetector struct {
	provider Provider
}

func NewMarketDataDetector(p Provider) *MarketDataDetector {
	return &MarketDataDetector{provider: p}
}

func (d *MarketDataDetector) Name() string { return "marketdata" }

func (d *MarketDataDetector) Detect(ctx context.Context, req *domain.NormalizedRequest) (*domain.SubAnalysis, error) {
	start := time.Now()

	trading := req.Payload.Trading
	if trading == nil {
		return ok(d.Name(), start, 0, 50, map[string]any{"series_points": 0}), nil
	}

	resp, err := d.provider.Query(ctx, "marketdata", trading.Symbol)
	if err != nil {
		return degraded(d.Name(), start, fmt.Sprintf("market data lookup: %v", err)), nil
	}

	volumeSpike, priceSwing := seriesRatios(trading.Series)

	// volume-spike ratio and price swing each map onto half the scale
	score := 0.0
	if volumeSpike > 1 {
		score += min(50, (volumeSpike-1)*10)
	}
	if priceSwing > 1 {
		score += min(50, (priceSwing-1)*25)
	}
	if !resp.Found {
		// unlisted instrument being actively traded
		score += 10
	}

	findings := map[string]any{
		"volume_spike_ratio": volumeSpike,
		"price_swing_ratio":  priceSwing,
		"listed":             resp.Found,
		"series_points":      len(trading.Series),
	}

	confidence := 85.0
	if len(trading.Series) < 3 {
		confidence = 40
	}
	return ok(d.Name(), start, score, confidence, findings), nil
}

// seriesRatios returns max/avg volume and max/min price over the series.
func seriesRatios(series []domain.TradePoint) (volumeSpike, priceSwing float64) {
	if len(series) == 0 {
		return 1, 1
	}
	var volSum, volMax float64
	priceMin, priceMax := series[0].Price, series[0].Price
	for _, p := range series {
		volSum += p.Volume
		if p.Volume > volMax {
			volMax = p.Volume
		}
		if p.Price < priceMin {
			priceMin = p.Price
		}
		if p.Price > priceMax {
			priceMax = p.Price
		}
	}
	volAvg := volSum / float64(len(series))
	volumeSpike, priceSwing = 1, 1
	if volAvg > 0 {
		volumeSpike = volMax / volAvg
	}
	if priceMin > 0 {
		priceSwing = priceMax / priceMin
	}
	return volumeSpike, priceSwing
}

// RegulatoryDetector checks sanctions and law-enforcement databases.
// A hit is decisive.
type RegulatoryDetector struct {
	provider Provider
}

func NewRegulatoryDetector(p Provider) *RegulatoryDetector {
	return &RegulatoryDetector{provider: p}
}

func (d *RegulatoryDetector) Name() string { return "regulatory" }

func (d *RegulatoryDetector) Detect(ctx context.Context, req *domain.NormalizedRequest) (*domain.SubAnalysis, error) {
	start := time.Now()

	resp, err := d.provider.Query(ctx, "sanctions", subjectKey(req))
	if err != nil {
		return degraded(d.Name(), start, fmt.Sprintf("sanctions lookup: %v", err)), nil
	}

	if resp.Found && resp.Score >= 50 {
		return ok(d.Name(), start, 95, 95, map[string]any{
			"sanctioned": true,
		}), nil
	}
	return ok(d.Name(), start, 0, 90, map[string]any{
		"sanctioned": false,
	}), nil
}

// WatchlistDetector cross-references the tenant's scammer database.
// A match is decisive; the score grows slightly with report volume.
type WatchlistDetector struct {
	repo     domain.Repository
	tenantID string
}

func NewWatchlistDetector(repo domain.Repository, tenantID string) *WatchlistDetector {
	return &WatchlistDetector{repo: repo, tenantID: tenantID}
}

func (d *WatchlistDetector) Name() string { return "watchlist" }

func (d *WatchlistDetector) Detect(ctx context.Context, req *domain.NormalizedRequest) (*domain.SubAnalysis, error) {
	start := time.Now()

	if d.repo == nil {
		return degraded(d.Name(), start, "no watchlist store configured"), nil
	}

	entry, err := d.repo.LookupWatchlist(ctx, d.tenantID, subjectKey(req))
	if err != nil {
		return degraded(d.Name(), start, fmt.Sprintf("watchlist lookup: %v", err)), nil
	}
	if entry == nil {
		return ok(d.Name(), start, 0, 90, map[string]any{"matched": false}), nil
	}

	score := 92 + float64(min(entry.Reports, 8))
	return ok(d.Name(), start, score, 95, map[string]any{
		"matched": true,
		"reason":  entry.Reason,
		"reports": entry.Reports,
	}), nil
}
