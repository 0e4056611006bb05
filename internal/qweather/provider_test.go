package qweather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherdesk/internal/cache"
	"weatherdesk/internal/core"
	"weatherdesk/internal/fetch"
)

const beijingID = "101010100"

const nowBody = `{"code":"200","now":{"obsTime":"2024-06-01T12:00+08:00","temp":"28","feelsLike":"30",
"text":"晴","windDir":"南风","windScale":"3","windSpeed":"15","humidity":"40","precip":"0.0",
"pressure":"1005","vis":"25"}}`

const forecastBody = `{"code":"200","daily":[
{"fxDate":"2024-06-01","tempMax":"33","tempMin":"20","textDay":"晴","textNight":"多云","windDirDay":"南风","windScaleDay":"1-3","windSpeedDay":"3"},
{"fxDate":"2024-06-02","tempMax":"31","tempMin":"19","textDay":"多云","textNight":"阴","windDirDay":"东风","windScaleDay":"1-3","windSpeedDay":"5"},
{"fxDate":"2024-06-03","tempMax":"29","tempMin":"18","textDay":"小雨","textNight":"小雨","windDirDay":"北风","windScaleDay":"3-4","windSpeedDay":"16"}]}`

type route func(q url.Values) (int, string)

// fakeUpstream serves both QWeather hosts from one httptest server and counts
// requests per path.
type fakeUpstream struct {
	server *httptest.Server

	mu     sync.Mutex
	routes map[string]route
	hits   map[string]int
	last   map[string]url.Values
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	u := &fakeUpstream{
		routes: make(map[string]route),
		hits:   make(map[string]int),
		last:   make(map[string]url.Values),
	}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.hits[r.URL.Path]++
		u.last[r.URL.Path] = r.URL.Query()
		handler, ok := u.routes[r.URL.Path]
		u.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		status, body := handler(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *fakeUpstream) handle(path string, r route) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.routes[path] = r
}

func (u *fakeUpstream) reply(path, body string) {
	u.handle(path, func(url.Values) (int, string) { return http.StatusOK, body })
}

func (u *fakeUpstream) count(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[path]
}

func (u *fakeUpstream) query(path string) url.Values {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.last[path]
}

// newTestProvider wires a provider to the fake upstream with a fresh file cache
// and no delay between attempts.
func newTestProvider(t *testing.T, u *fakeUpstream, opts ...Option) (*Provider, *cache.LocalStore) {
	t.Helper()
	store := cache.NewLocalStore(t.TempDir())
	fetcher := fetch.New(fetch.Config{MaxAttempts: 3, RetryDelay: 0, Timeout: 2 * time.Second})
	p := New(Config{
		APIKey:     "test-key",
		GeoBaseURL: u.server.URL,
		BaseURL:    u.server.URL + "/",
	}, store, fetcher, opts...)
	return p, store
}

func indexBody(level, category string) string {
	return fmt.Sprintf(`{"code":"200","daily":[{"date":"2024-06-01","type":"5","name":"紫外线指数","level":%q,"category":%q,"text":"..."}]}`, level, category)
}

func TestResolveCity(t *testing.T) {
	ctx := context.Background()

	t.Run("SecondCallServedFromCache", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(cityLookupPath, `{"code":"200","location":[{"id":"101010100","name":"Beijing","adm1":"Beijing"},{"id":"1","name":"Other"}]}`)
		p, _ := newTestProvider(t, u)

		first, err := p.ResolveCity(ctx, "Beijing")
		require.NoError(t, err)
		second, err := p.ResolveCity(ctx, "Beijing")
		require.NoError(t, err)

		want := core.City{ID: beijingID, Name: "Beijing"}
		assert.Equal(t, want, first)
		assert.Equal(t, want, second)
		assert.Equal(t, 1, u.count(cityLookupPath))

		q := u.query(cityLookupPath)
		assert.Equal(t, "Beijing", q.Get("location"))
		assert.Equal(t, "test-key", q.Get("key"))
	})

	t.Run("NameIsTrimmed", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(cityLookupPath, `{"code":"200","location":[{"id":"101010100","name":"Beijing"}]}`)
		p, store := newTestProvider(t, u)

		_, err := p.ResolveCity(ctx, "  Beijing \t")
		require.NoError(t, err)

		assert.Equal(t, "Beijing", u.query(cityLookupPath).Get("location"))
		assert.FileExists(t, filepath.Join(store.Dir(), "city_Beijing.json"))
	})

	t.Run("EmptyNameNeverCallsUpstream", func(t *testing.T) {
		u := newFakeUpstream(t)
		p, _ := newTestProvider(t, u)

		_, err := p.ResolveCity(ctx, "   ")

		assert.True(t, core.IsKind(err, core.ErrorKindInvalidInput))
		assert.Equal(t, 0, u.count(cityLookupPath))
	})

	t.Run("RejectionIsNotRetried", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(cityLookupPath, `{"code":"404","message":"not found"}`)
		p, store := newTestProvider(t, u)

		_, err := p.ResolveCity(ctx, "Atlantis")

		var werr *core.WeatherError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, core.ErrorKindCityLookup, werr.Kind)
		assert.Equal(t, "404", werr.Code)
		assert.Equal(t, "not found", werr.Message)
		assert.Equal(t, 1, u.count(cityLookupPath))
		assert.NoFileExists(t, filepath.Join(store.Dir(), "city_Atlantis.json"))
	})

	t.Run("RejectionWithoutMessageIsDescribed", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(cityLookupPath, `{"code":"401"}`)
		p, _ := newTestProvider(t, u)

		_, err := p.ResolveCity(ctx, "Beijing")

		var werr *core.WeatherError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, core.ErrorKindCityLookup, werr.Kind)
		assert.Contains(t, werr.Message, "API key")
	})

	t.Run("EmptyResultIsNoMatch", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(cityLookupPath, `{"code":"200","location":[]}`)
		p, _ := newTestProvider(t, u)

		_, err := p.ResolveCity(ctx, "Nowhere")

		var werr *core.WeatherError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, core.ErrorKindCityLookup, werr.Kind)
		assert.Equal(t, "no match", werr.Message)
	})

	t.Run("MatchWithoutIDIsRejected", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(cityLookupPath, `{"code":"200","location":[{"name":"Beijing"}]}`)
		p, store := newTestProvider(t, u)

		_, err := p.ResolveCity(ctx, "Beijing")

		assert.True(t, core.IsKind(err, core.ErrorKindUpstream), "got %v", err)
		assert.NoFileExists(t, filepath.Join(store.Dir(), "city_Beijing.json"))
	})

	t.Run("ConcurrentMissesShareOneFetch", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.handle(cityLookupPath, func(url.Values) (int, string) {
			time.Sleep(50 * time.Millisecond)
			return http.StatusOK, `{"code":"200","location":[{"id":"101010100","name":"Beijing"}]}`
		})
		p, _ := newTestProvider(t, u)

		var wg sync.WaitGroup
		errs := make([]error, 10)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = p.ResolveCity(ctx, "Beijing")
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}
		assert.Equal(t, 1, u.count(cityLookupPath))
	})
}

func TestCurrentConditions(t *testing.T) {
	ctx := context.Background()

	t.Run("MergesUVIndex", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(weatherNowPath, nowBody)
		u.reply(indicesPath, indexBody("2", "弱"))
		p, _ := newTestProvider(t, u)

		got, err := p.CurrentConditions(ctx, beijingID)
		require.NoError(t, err)

		assert.Equal(t, "晴", got.Text)
		assert.Equal(t, core.Value("28"), got.Temp)
		assert.Equal(t, core.Value("30"), got.FeelsLike)
		assert.Equal(t, "南风", got.WindDir)
		assert.Equal(t, core.Value("1005"), got.Pressure)
		assert.Nil(t, got.Cloud)
		assert.Equal(t, core.UVIndex{Level: "2", Category: "弱"}, got.UV)

		q := u.query(weatherNowPath)
		assert.Equal(t, beijingID, q.Get("location"))
		assert.Equal(t, "zh", q.Get("lang"))
		assert.Equal(t, "m", q.Get("unit"))
		assert.Equal(t, "5", u.query(indicesPath).Get("type"))
	})

	t.Run("DegradesUVOnIndexFailure", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(weatherNowPath, nowBody)
		u.handle(indicesPath, func(url.Values) (int, string) {
			return http.StatusInternalServerError, `boom`
		})
		p, _ := newTestProvider(t, u)

		got, err := p.CurrentConditions(ctx, beijingID)
		require.NoError(t, err)

		assert.Equal(t, "晴", got.Text)
		assert.Equal(t, "2024-06-01T12:00+08:00", got.ObsTime)
		assert.Equal(t, core.UVIndex{Level: "unknown", Category: "unknown"}, got.UV)
	})

	t.Run("KeepsOptionalCloudCover", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(weatherNowPath, `{"code":"200","now":{"obsTime":"t","text":"阴","cloud":"91"}}`)
		u.reply(indicesPath, indexBody("1", "最弱"))
		p, _ := newTestProvider(t, u)

		got, err := p.CurrentConditions(ctx, beijingID)
		require.NoError(t, err)
		require.NotNil(t, got.Cloud)
		assert.Equal(t, core.Value("91"), *got.Cloud)
	})

	t.Run("ServedFromCache", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(weatherNowPath, nowBody)
		u.reply(indicesPath, indexBody("2", "弱"))
		p, _ := newTestProvider(t, u)

		_, err := p.CurrentConditions(ctx, beijingID)
		require.NoError(t, err)
		got, err := p.CurrentConditions(ctx, beijingID)
		require.NoError(t, err)

		assert.Equal(t, 1, u.count(weatherNowPath))
		assert.Equal(t, 1, u.count(indicesPath))
		assert.Equal(t, "2", got.UV.Level)
	})

	t.Run("CorruptCacheEntryIsRefetched", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(weatherNowPath, nowBody)
		u.reply(indicesPath, indexBody("2", "弱"))
		p, store := newTestProvider(t, u)
		require.NoError(t, os.WriteFile(store.Path(cache.NamespaceWeather, beijingID), []byte(`{"timestamp":`), 0o644))

		got, err := p.CurrentConditions(ctx, beijingID)
		require.NoError(t, err)
		assert.Equal(t, core.Value("28"), got.Temp)
		assert.Equal(t, 1, u.count(weatherNowPath))
	})

	t.Run("UpstreamCodeIsSurfaced", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(weatherNowPath, `{"code":"402"}`)
		p, _ := newTestProvider(t, u)

		_, err := p.CurrentConditions(ctx, beijingID)

		var werr *core.WeatherError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, core.ErrorKindUpstream, werr.Kind)
		assert.Equal(t, "402", werr.Code)
		assert.Equal(t, 1, u.count(weatherNowPath))
		assert.Equal(t, 0, u.count(indicesPath))
	})

	t.Run("MissingNowIsAnError", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(weatherNowPath, `{"code":"200"}`)
		p, _ := newTestProvider(t, u)

		_, err := p.CurrentConditions(ctx, beijingID)

		assert.True(t, core.IsKind(err, core.ErrorKindUpstream))
	})

	t.Run("AcceptsNumericValues", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(weatherNowPath, `{"code":"200","now":{"obsTime":"t","text":"晴","temp":28,"humidity":40.5,"cloud":10}}`)
		u.reply(indicesPath, indexBody("2", "弱"))
		p, _ := newTestProvider(t, u)

		got, err := p.CurrentConditions(ctx, beijingID)
		require.NoError(t, err)
		assert.Equal(t, core.Value("28"), got.Temp)
		assert.Equal(t, core.Value("40.5"), got.Humidity)
		require.NotNil(t, got.Cloud)
		assert.Equal(t, core.Value("10"), *got.Cloud)

		cached, err := p.CurrentConditions(ctx, beijingID)
		require.NoError(t, err)
		assert.Equal(t, core.Value("28"), cached.Temp)
		assert.Equal(t, 1, u.count(weatherNowPath))
	})

	t.Run("EmptyCityID", func(t *testing.T) {
		u := newFakeUpstream(t)
		p, _ := newTestProvider(t, u)

		_, err := p.CurrentConditions(ctx, "")

		assert.True(t, core.IsKind(err, core.ErrorKindInvalidInput))
	})
}

func TestForecast(t *testing.T) {
	ctx := context.Background()

	t.Run("ReturnsDaysInOrderAndCaches", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(forecastPath, forecastBody)
		p, store := newTestProvider(t, u)

		days, err := p.Forecast(ctx, beijingID)
		require.NoError(t, err)
		require.Len(t, days, 3)
		assert.Equal(t, core.ForecastDay{
			Date:           "2024-06-01",
			DayCondition:   "晴",
			NightCondition: "多云",
			TempMin:        "20",
			TempMax:        "33",
			DayWindDir:     "南风",
			DayWindScale:   "1-3",
			DayWindSpeed:   "3",
		}, days[0])
		assert.Equal(t, "2024-06-03", days[2].Date)

		again, err := p.Forecast(ctx, beijingID)
		require.NoError(t, err)
		assert.Equal(t, days, again)
		assert.Equal(t, 1, u.count(forecastPath))
		assert.FileExists(t, filepath.Join(store.Dir(), "forecast_101010100.json"))
	})

	t.Run("DayCountIsNotEnforced", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(forecastPath, `{"code":"200","daily":[{"fxDate":"2024-06-01"}]}`)
		p, _ := newTestProvider(t, u)

		days, err := p.Forecast(ctx, beijingID)
		require.NoError(t, err)
		assert.Len(t, days, 1)
	})

	t.Run("AcceptsNumericValues", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(forecastPath, `{"code":"200","daily":[{"fxDate":"2024-06-01","tempMax":33,"tempMin":-2.5}]}`)
		p, _ := newTestProvider(t, u)

		days, err := p.Forecast(ctx, beijingID)
		require.NoError(t, err)
		require.Len(t, days, 1)
		assert.Equal(t, core.Value("33"), days[0].TempMax)
		assert.Equal(t, core.Value("-2.5"), days[0].TempMin)
	})

	t.Run("MissingDailyIsAnError", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(forecastPath, `{"code":"200"}`)
		p, store := newTestProvider(t, u)

		days, err := p.Forecast(ctx, beijingID)

		assert.Nil(t, days)
		assert.True(t, core.IsKind(err, core.ErrorKindUpstream), "got %v", err)
		assert.NoFileExists(t, filepath.Join(store.Dir(), "forecast_101010100.json"))

		_, err = p.Forecast(ctx, beijingID)
		assert.Error(t, err)
		assert.Equal(t, 2, u.count(forecastPath))
	})

	t.Run("CallersGetIndependentSlices", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.handle(forecastPath, func(url.Values) (int, string) {
			time.Sleep(50 * time.Millisecond)
			return http.StatusOK, forecastBody
		})
		p, _ := newTestProvider(t, u)

		var wg sync.WaitGroup
		results := make([][]core.ForecastDay, 4)
		errs := make([]error, len(results))
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = p.Forecast(ctx, beijingID)
			}(i)
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		results[0][0].Date = "changed"
		for _, days := range results[1:] {
			require.Len(t, days, 3)
			assert.Equal(t, "2024-06-01", days[0].Date)
		}
		assert.Equal(t, 1, u.count(forecastPath))
	})

	t.Run("UpstreamCodeIsSurfaced", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(forecastPath, `{"code":"500"}`)
		p, _ := newTestProvider(t, u)

		_, err := p.Forecast(ctx, beijingID)

		assert.True(t, core.IsKind(err, core.ErrorKindUpstream))
		assert.Equal(t, 1, u.count(forecastPath))
	})
}

func TestLifeIndices(t *testing.T) {
	ctx := context.Background()

	t.Run("CachesPerCityAndType", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(indicesPath, indexBody("3", "较适宜"))
		p, store := newTestProvider(t, u)

		entry, err := p.LifeIndex(ctx, beijingID, core.IndexSport)
		require.NoError(t, err)
		assert.Equal(t, core.LifeIndexEntry{IndexName: "sport", Level: "3", Category: "较适宜"}, entry)

		_, err = p.LifeIndex(ctx, beijingID, core.IndexSport)
		require.NoError(t, err)
		assert.Equal(t, 1, u.count(indicesPath))
		assert.FileExists(t, filepath.Join(store.Dir(), "index_101010100_1.json"))

		q := u.query(indicesPath)
		assert.Equal(t, "1", q.Get("type"))
		assert.Equal(t, "zh", q.Get("lang"))
	})

	t.Run("EmptyDailyIsAnError", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.reply(indicesPath, `{"code":"200","daily":[]}`)
		p, _ := newTestProvider(t, u)

		_, err := p.LifeIndex(ctx, beijingID, core.IndexDress)

		assert.True(t, core.IsKind(err, core.ErrorKindUpstream))
	})

	t.Run("BatchSurvivesPartialFailure", func(t *testing.T) {
		u := newFakeUpstream(t)
		u.handle(indicesPath, func(q url.Values) (int, string) {
			switch q.Get("type") {
			case string(core.IndexCarWash):
				return http.StatusOK, `{"code":"500"}`
			case string(core.IndexCold):
				return http.StatusBadGateway, `bad gateway`
			default:
				return http.StatusOK, indexBody("1", "适宜")
			}
		})
		p, _ := newTestProvider(t, u)

		got := p.AllLifeIndices(ctx, beijingID)

		require.Len(t, got, 6)
		assert.Equal(t, core.LifeIndexEntry{IndexName: "car_wash", Level: "unknown", Category: "unknown"}, got["car_wash"])
		assert.Equal(t, core.LifeIndexEntry{IndexName: "cold", Level: "unknown", Category: "unknown"}, got["cold"])
		for _, name := range []string{"sport", "dress", "uv", "comfort"} {
			assert.Equal(t, "1", got[name].Level, name)
			assert.Equal(t, "适宜", got[name].Category, name)
		}
	})
}

func TestSnapshot(t *testing.T) {
	u := newFakeUpstream(t)
	u.reply(weatherNowPath, nowBody)
	u.reply(forecastPath, `{"code":"403"}`)
	u.reply(indicesPath, indexBody("2", "弱"))
	p, _ := newTestProvider(t, u)

	snap := p.Snapshot(context.Background(), beijingID)

	assert.Equal(t, beijingID, snap.CityID)
	require.NoError(t, snap.CurrentErr)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "2", snap.Current.UV.Level)
	assert.True(t, core.IsKind(snap.ForecastErr, core.ErrorKindUpstream))
	assert.Nil(t, snap.Forecast)
	assert.False(t, snap.Complete())
	assert.Contains(t, snap.Errors["forecast"], "403")
	assert.NotContains(t, snap.Errors, "current")
	assert.Len(t, snap.Indices, 6)
	assert.Equal(t, 6, u.count(indicesPath), "the UV index is fetched once and shared")
}

func TestHooks(t *testing.T) {
	u := newFakeUpstream(t)
	u.reply(cityLookupPath, `{"code":"200","location":[{"id":"101010100","name":"Beijing"}]}`)
	u.reply(forecastPath, `{"code":"429"}`)

	var mu sync.Mutex
	lookups := map[bool]int{}
	var upstreamCodes []string
	p, _ := newTestProvider(t, u, WithHooks(Hooks{
		OnCacheLookup: func(ns string, hit bool) {
			mu.Lock()
			defer mu.Unlock()
			lookups[hit]++
		},
		OnUpstreamError: func(ns, code string) {
			mu.Lock()
			defer mu.Unlock()
			upstreamCodes = append(upstreamCodes, ns+":"+code)
		},
	}))

	ctx := context.Background()
	_, _ = p.ResolveCity(ctx, "Beijing")
	_, _ = p.ResolveCity(ctx, "Beijing")
	_, _ = p.Forecast(ctx, beijingID)

	assert.Equal(t, 1, lookups[true])
	assert.Equal(t, 2, lookups[false])
	assert.Equal(t, []string{"forecast:429"}, upstreamCodes)
}
