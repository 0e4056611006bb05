package core

import "context"

// Provider is the collaborator-facing interface of the data-access layer.
// Every method returns either usable data or a *WeatherError.
type Provider interface {
	// ResolveCity turns a city name into a canonical City.
	ResolveCity(ctx context.Context, name string) (City, error)

	// CurrentConditions returns the current observation with the UV index merged in.
	CurrentConditions(ctx context.Context, cityID string) (*CurrentConditions, error)

	// Forecast returns the daily forecast in upstream order.
	Forecast(ctx context.Context, cityID string) ([]ForecastDay, error)

	// LifeIndex returns a single life index.
	LifeIndex(ctx context.Context, cityID string, indexType IndexType) (LifeIndexEntry, error)

	// AllLifeIndices returns all six indices keyed by index name. Never fails;
	// unavailable entries carry the "unknown" sentinel.
	AllLifeIndices(ctx context.Context, cityID string) map[string]LifeIndexEntry

	// Snapshot fetches current conditions, forecast and indices concurrently.
	Snapshot(ctx context.Context, cityID string) *Snapshot
}
