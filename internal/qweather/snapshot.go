package qweather

import (
	"context"
	"sync"

	"weatherdesk/internal/core"
)

// Snapshot fetches current conditions, forecast and all life indices for
// cityID concurrently. The three parts touch disjoint cache keys, except for
// the UV index which the singleflight group shares between them.
func (p *Provider) Snapshot(ctx context.Context, cityID string) *core.Snapshot {
	snap := &core.Snapshot{CityID: cityID}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		snap.Current, snap.CurrentErr = p.CurrentConditions(ctx, cityID)
	}()
	go func() {
		defer wg.Done()
		snap.Forecast, snap.ForecastErr = p.Forecast(ctx, cityID)
	}()
	go func() {
		defer wg.Done()
		snap.Indices = p.AllLifeIndices(ctx, cityID)
	}()
	wg.Wait()

	if snap.CurrentErr != nil {
		snap.Errors = map[string]string{"current": snap.CurrentErr.Error()}
	}
	if snap.ForecastErr != nil {
		if snap.Errors == nil {
			snap.Errors = map[string]string{}
		}
		snap.Errors["forecast"] = snap.ForecastErr.Error()
	}
	return snap
}
