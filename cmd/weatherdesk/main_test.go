package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherdesk/internal/core"
	"weatherdesk/internal/service"
)

func fakeQWeather(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/city/lookup":
			fmt.Fprint(w, `{"code":"200","location":[{"id":"101020100","name":"上海"}]}`)
		case "/v7/weather/now":
			fmt.Fprint(w, `{"code":"200","now":{"obsTime":"2024-06-01T12:00+08:00","temp":"26","feelsLike":"27","text":"多云"}}`)
		case "/v7/weather/3d":
			fmt.Fprint(w, `{"code":"200","daily":[{"fxDate":"2024-06-01","tempMax":"30","tempMin":"22","textDay":"多云","textNight":"阴"}]}`)
		case "/v7/indices/1d":
			fmt.Fprint(w, `{"code":"200","daily":[{"level":"1","category":"适宜"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, upstreamURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
qweather:
  api_key: test-key
  geo_base_url: %s
  base_url: %s
fetch:
  retry_delay: 0
cache:
  dir: %s
log:
  level: error
  format: json
`, upstreamURL, upstreamURL, filepath.Join(dir, "cache"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "weatherdesk dev")
}

func TestLookupAndHistory(t *testing.T) {
	cfg := writeConfig(t, fakeQWeather(t).URL)

	out, err := run(t, "--config", cfg, "lookup", "上海", "-o", "json")
	require.NoError(t, err)

	var res service.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, core.City{ID: "101020100", Name: "上海"}, res.City)
	require.NotNil(t, res.Snapshot.Current)
	assert.Equal(t, core.Value("26"), res.Snapshot.Current.Temp)

	out, err = run(t, "--config", cfg, "history")
	require.NoError(t, err)
	assert.Contains(t, out, " 1. 上海")
	assert.Contains(t, out, "last city: 上海")

	out, err = run(t, "--config", cfg, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "上海 (101020100)")
	assert.Contains(t, out, "Now: 多云, 26°C")
	assert.Contains(t, out, "uv: 适宜 (1)")

	out, err = run(t, "--config", cfg, "clear-cache")
	require.NoError(t, err)
	assert.Contains(t, out, "cache cleared")
}

func TestRefreshWithoutHistory(t *testing.T) {
	cfg := writeConfig(t, fakeQWeather(t).URL)

	_, err := run(t, "--config", cfg, "refresh")

	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrorKindNotFound))
}

func TestLookupUnknownFormat(t *testing.T) {
	cfg := writeConfig(t, fakeQWeather(t).URL)

	_, err := run(t, "--config", cfg, "lookup", "上海", "-o", "xml")

	assert.ErrorContains(t, err, "unknown output format")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "history")

	assert.ErrorContains(t, err, "failed to load config")
}
