package core

import (
	"encoding/json"
	"fmt"
)

// Unknown is the sentinel used for index values that could not be fetched.
const Unknown = "unknown"

// City is a resolved location.
type City struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

// UVIndex is the level/category pair merged into current conditions.
type UVIndex struct {
	Level    string `json:"level"`
	Category string `json:"category"`
}

// UnknownUV is substituted when the UV index sub-fetch fails.
var UnknownUV = UVIndex{Level: Unknown, Category: Unknown}

// Value is an upstream-reported scalar. It decodes from a JSON string or a
// JSON number and keeps the reported text unmodified.
type Value string

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected a string or a number, got %s", data)
	}
	*v = Value(n)
	return nil
}

// String returns the reported text.
func (v Value) String() string {
	return string(v)
}

// CurrentConditions is the normalized "now" record. Values are passed through
// exactly as the upstream reported them, no unit conversion.
type CurrentConditions struct {
	Text      string `json:"text" validate:"required"`
	Temp      Value  `json:"temp"`
	FeelsLike Value  `json:"feelsLike"`
	Humidity  Value  `json:"humidity"`
	WindDir   string `json:"windDir"`
	WindScale Value  `json:"windScale"`
	WindSpeed Value  `json:"windSpeed"`
	Pressure  Value  `json:"pressure"`
	Precip    Value  `json:"precip"`
	Vis       Value  `json:"vis"`
	// Cloud is absent for some stations.
	Cloud   *Value  `json:"cloud,omitempty"`
	ObsTime string  `json:"obsTime" validate:"required"`
	UV      UVIndex `json:"uv"`
}

// ForecastDay is one day of the 3-day forecast.
type ForecastDay struct {
	Date           string `json:"fxDate" validate:"required"`
	DayCondition   string `json:"textDay"`
	NightCondition string `json:"textNight"`
	TempMin        Value  `json:"tempMin"`
	TempMax        Value  `json:"tempMax"`
	DayWindDir     string `json:"windDirDay"`
	DayWindScale   Value  `json:"windScaleDay"`
	DayWindSpeed   Value  `json:"windSpeedDay"`
}

// LifeIndexEntry is the level/category of one life index type.
type LifeIndexEntry struct {
	IndexName string `json:"indexName"`
	Level     string `json:"level"`
	Category  string `json:"category"`
}

// Snapshot bundles everything the shell displays for one city. Each part
// succeeds or fails on its own; Indices is always fully populated.
type Snapshot struct {
	CityID      string                    `json:"city_id"`
	Current     *CurrentConditions        `json:"current,omitempty"`
	CurrentErr  error                     `json:"-"`
	Forecast    []ForecastDay             `json:"forecast,omitempty"`
	ForecastErr error                     `json:"-"`
	Indices     map[string]LifeIndexEntry `json:"indices"`
	// Errors holds the messages of failed parts keyed by "current" or "forecast".
	Errors map[string]string `json:"errors,omitempty"`
}

// Complete reports whether every part of the snapshot succeeded.
func (s *Snapshot) Complete() bool {
	return s.CurrentErr == nil && s.ForecastErr == nil
}
