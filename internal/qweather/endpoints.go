package qweather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"weatherdesk/internal/cache"
	"weatherdesk/internal/core"
)

type lookupResponse struct {
	Code     string      `json:"code"`
	Message  string      `json:"message"`
	Location []core.City `json:"location"`
}

type nowResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Now     json.RawMessage `json:"now"`
}

type forecastResponse struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Daily   []core.ForecastDay `json:"daily"`
}

type indexResponse struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Daily   []indexLevel `json:"daily"`
}

// indexLevel is the cached form of a life index.
type indexLevel struct {
	Level    string `json:"level" validate:"required"`
	Category string `json:"category" validate:"required"`
}

// ResolveCity turns a city name into the first match of the lookup endpoint.
func (p *Provider) ResolveCity(ctx context.Context, name string) (core.City, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.City{}, core.NewInvalidInputError("city name is required")
	}

	return load(ctx, p, cache.NamespaceCity, name, checkStruct[core.City], func(ctx context.Context) (core.City, error) {
		var resp lookupResponse
		params := url.Values{"location": {name}}
		if err := p.get(ctx, p.config.GeoBaseURL+cityLookupPath, params, &resp); err != nil {
			return core.City{}, err
		}
		if resp.Code != successCode {
			p.upstreamError(cache.NamespaceCity, resp.Code)
			return core.City{}, core.NewCityLookupError(resp.Code, describeCode(resp.Code, resp.Message))
		}
		if len(resp.Location) == 0 {
			return core.City{}, core.NewCityLookupError(resp.Code, "no match")
		}
		city := resp.Location[0]
		return core.City{ID: city.ID, Name: city.Name}, nil
	})
}

// CurrentConditions returns the current observation for cityID with the UV
// index merged in. A failed UV lookup degrades to the unknown sentinel.
func (p *Provider) CurrentConditions(ctx context.Context, cityID string) (*core.CurrentConditions, error) {
	if err := requireCityID(cityID); err != nil {
		return nil, err
	}

	raw, err := load(ctx, p, cache.NamespaceWeather, cityID, checkNow, func(ctx context.Context) (json.RawMessage, error) {
		var resp nowResponse
		if err := p.get(ctx, p.config.BaseURL+weatherNowPath, p.weatherParams(cityID), &resp); err != nil {
			return nil, err
		}
		if resp.Code != successCode {
			p.upstreamError(cache.NamespaceWeather, resp.Code)
			return nil, core.NewUpstreamError(resp.Code, describeCode(resp.Code, resp.Message))
		}
		return resp.Now, nil
	})
	if err != nil {
		return nil, err
	}

	conditions, err := parseNow(raw)
	if err != nil {
		return nil, err
	}

	uv, err := p.LifeIndex(ctx, cityID, core.IndexUV)
	if err != nil {
		p.logger.Warn("uv index unavailable", "city_id", cityID, "error", err)
		conditions.UV = core.UnknownUV
	} else {
		conditions.UV = core.UVIndex{Level: uv.Level, Category: uv.Category}
	}
	return conditions, nil
}

// Forecast returns the daily forecast for cityID in upstream order.
func (p *Provider) Forecast(ctx context.Context, cityID string) ([]core.ForecastDay, error) {
	if err := requireCityID(cityID); err != nil {
		return nil, err
	}

	days, err := load(ctx, p, cache.NamespaceForecast, cityID, checkDays, func(ctx context.Context) ([]core.ForecastDay, error) {
		var resp forecastResponse
		if err := p.get(ctx, p.config.BaseURL+forecastPath, p.weatherParams(cityID), &resp); err != nil {
			return nil, err
		}
		if resp.Code != successCode {
			p.upstreamError(cache.NamespaceForecast, resp.Code)
			return nil, core.NewUpstreamError(resp.Code, describeCode(resp.Code, resp.Message))
		}
		if resp.Daily == nil {
			return nil, core.NewUpstreamError(successCode, "response has no daily forecast")
		}
		return resp.Daily, nil
	})
	if err != nil {
		return nil, err
	}
	// Joined callers receive the same slice from the shared fetch.
	return slices.Clone(days), nil
}

// LifeIndex returns the first daily entry of one life index type.
func (p *Provider) LifeIndex(ctx context.Context, cityID string, indexType core.IndexType) (core.LifeIndexEntry, error) {
	if err := requireCityID(cityID); err != nil {
		return core.LifeIndexEntry{}, err
	}

	key := cityID + "_" + string(indexType)
	level, err := load(ctx, p, cache.NamespaceIndex, key, checkStruct[indexLevel], func(ctx context.Context) (indexLevel, error) {
		var resp indexResponse
		params := url.Values{
			"location": {cityID},
			"type":     {string(indexType)},
			"lang":     {p.config.Lang},
		}
		if err := p.get(ctx, p.config.BaseURL+indicesPath, params, &resp); err != nil {
			return indexLevel{}, err
		}
		if resp.Code != successCode {
			p.upstreamError(cache.NamespaceIndex, resp.Code)
			return indexLevel{}, core.NewUpstreamError(resp.Code, describeCode(resp.Code, resp.Message))
		}
		if len(resp.Daily) == 0 {
			return indexLevel{}, core.NewUpstreamError(resp.Code, "no index data")
		}
		return resp.Daily[0], nil
	})
	if err != nil {
		return core.LifeIndexEntry{}, err
	}
	return core.LifeIndexEntry{IndexName: indexType.Name(), Level: level.Level, Category: level.Category}, nil
}

// AllLifeIndices queries every index type in turn. A failed index is
// reported with the unknown sentinel; the batch itself never fails.
func (p *Provider) AllLifeIndices(ctx context.Context, cityID string) map[string]core.LifeIndexEntry {
	out := make(map[string]core.LifeIndexEntry, len(core.LifeIndexTypes))
	for _, t := range core.LifeIndexTypes {
		entry, err := p.LifeIndex(ctx, cityID, t)
		if err != nil {
			p.logger.Warn("life index unavailable", "city_id", cityID, "index", t.Name(), "error", err)
			entry = core.UnknownIndex(t)
		}
		out[t.Name()] = entry
	}
	return out
}

func (p *Provider) weatherParams(cityID string) url.Values {
	return url.Values{
		"location": {cityID},
		"lang":     {p.config.Lang},
		"unit":     {p.config.Unit},
	}
}

func requireCityID(cityID string) error {
	if strings.TrimSpace(cityID) == "" {
		return core.NewInvalidInputError("city id is required")
	}
	return nil
}

func checkStruct[T any](v T) error {
	return validate.Struct(v)
}

func checkDays(days []core.ForecastDay) error {
	if days == nil {
		return fmt.Errorf("daily is missing")
	}
	return validate.Var(days, "dive")
}

func checkNow(raw json.RawMessage) error {
	_, err := parseNow(raw)
	return err
}

// parseNow decodes and validates a "now" payload.
func parseNow(raw json.RawMessage) (*core.CurrentConditions, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, core.NewUpstreamError(successCode, "response has no current conditions")
	}
	var c core.CurrentConditions
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, core.NewUpstreamError(successCode, "failed to decode current conditions: "+err.Error())
	}
	if err := validate.Struct(c); err != nil {
		return nil, core.NewUpstreamError(successCode, "invalid current conditions: "+err.Error())
	}
	return &c, nil
}
