package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"weatherdesk/internal/core"
	"weatherdesk/internal/service"
)

const (
	outputText = "text"
	outputJSON = "json"
)

func render(w io.Writer, format string, res *service.Result) error {
	switch format {
	case outputJSON:
		return writeJSON(w, res)
	case outputText, "":
		renderText(w, res)
		return nil
	default:
		return fmt.Errorf("unknown output format: %q (valid: text, json)", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderText(w io.Writer, res *service.Result) {
	snap := res.Snapshot
	fmt.Fprintf(w, "%s (%s)\n\n", res.City.Name, res.City.ID)

	if snap.Current != nil {
		now := snap.Current
		fmt.Fprintf(w, "Now: %s, %s°C (feels like %s°C)\n", now.Text, now.Temp, now.FeelsLike)
		fmt.Fprintf(w, "Wind: %s scale %s, %s km/h\n", now.WindDir, now.WindScale, now.WindSpeed)
		fmt.Fprintf(w, "Humidity %s%%  Pressure %s hPa  Visibility %s km  Precip %s mm\n",
			now.Humidity, now.Pressure, now.Vis, now.Precip)
		if now.Cloud != nil {
			fmt.Fprintf(w, "Cloud cover %s%%\n", *now.Cloud)
		}
		fmt.Fprintf(w, "UV: %s (%s)\n", now.UV.Level, now.UV.Category)
		fmt.Fprintf(w, "Observed at %s\n\n", now.ObsTime)
	} else if msg, ok := snap.Errors["current"]; ok {
		fmt.Fprintf(w, "Now: unavailable (%s)\n\n", msg)
	}

	if len(snap.Forecast) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DATE\tDAY\tNIGHT\tTEMP\tWIND")
		for _, d := range snap.Forecast {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s~%s°C\t%s %s\n",
				d.Date, d.DayCondition, d.NightCondition, d.TempMin, d.TempMax, d.DayWindDir, d.DayWindScale)
		}
		_ = tw.Flush()
		fmt.Fprintln(w)
	} else if msg, ok := snap.Errors["forecast"]; ok {
		fmt.Fprintf(w, "Forecast: unavailable (%s)\n\n", msg)
	}

	for _, t := range core.LifeIndexTypes {
		entry, ok := snap.Indices[t.Name()]
		if !ok {
			entry = core.UnknownIndex(t)
		}
		fmt.Fprintf(w, "%s: %s (%s)\n", t.Name(), entry.Category, entry.Level)
	}
}

func renderHistory(w io.Writer, format string, view *service.HistoryView) error {
	switch format {
	case outputJSON:
		return writeJSON(w, view)
	case outputText, "":
	default:
		return fmt.Errorf("unknown output format: %q (valid: text, json)", format)
	}

	if len(view.History) == 0 {
		fmt.Fprintln(w, "no recent queries")
	} else {
		for i, name := range view.History {
			fmt.Fprintf(w, "%2d. %s\n", i+1, name)
		}
	}
	if view.LastCity != nil {
		fmt.Fprintf(w, "\nlast city: %s\n", strings.TrimSpace(view.LastCity.Name))
	}
	return nil
}
