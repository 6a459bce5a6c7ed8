// Package render converts a results bundle into the HTML body of a digest
// email. It is a presentation collaborator of the aggregation core: every
// bundle value is either a provider's native payload or an error string, and
// rendering must always produce a deliverable document. Payloads that do not
// match the expected provider shape degrade to a preformatted JSON block
// instead of failing the delivery.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/tbourn/go-digest-backend/internal/services"
)

// sectionOrder fixes the order of known providers in the rendered digest;
// unknown keys follow alphabetically.
var sectionOrder = map[string]int{
	"weather": 0,
	"news":    1,
}

// Renderer builds digest HTML from bundles.
type Renderer struct {
	// TempUnit is the symbol appended to temperatures ("°C" or "°F").
	// Payloads do not carry their unit system, so this follows the
	// service-wide default units setting.
	TempUnit string

	tmpl *template.Template
}

// New constructs a Renderer. metricUnits selects "°C" over "°F".
func New(metricUnits bool) *Renderer {
	unit := "°C"
	if !metricUnits {
		unit = "°F"
	}
	return &Renderer{
		TempUnit: unit,
		tmpl:     template.Must(template.New("digest").Parse(digestTemplate)),
	}
}

// weatherPayload is the subset of the weather provider response used for
// presentation.
type weatherPayload struct {
	Name    string `json:"name"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// newsPayload is the subset of the news provider response used for
// presentation.
type newsPayload struct {
	Data []newsArticle `json:"data"`
}

type newsArticle struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	PublishedAt string   `json:"published_at"`
	URL         string   `json:"url"`
	Source      string   `json:"source"`
	ImageURL    string   `json:"image_url"`
	Categories  []string `json:"categories"`
}

// section is one rendered block of the digest document.
type section struct {
	Key      string
	Err      string
	Weather  *weatherView
	Articles []articleView
	Raw      string
}

type weatherView struct {
	Location    string
	Description string
	Temperature string
	Humidity    string
	WindSpeed   string
}

type articleView struct {
	Title       string
	Description string
	PublishedAt string
	URL         string
	Source      string
	ImageURL    string
	Categories  string
}

// Digest renders the bundle into a complete HTML fragment ready for email
// delivery. It never fails on payload shape; only a template execution error
// (effectively unreachable with the static template) is returned.
func (r *Renderer) Digest(bundle services.Bundle) (string, error) {
	keys := make([]string, 0, len(bundle))
	for k := range bundle {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := sectionOrder[keys[i]]
		oj, jok := sectionOrder[keys[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok:
			return true
		case jok:
			return false
		default:
			return keys[i] < keys[j]
		}
	})

	sections := make([]section, 0, len(keys))
	for _, k := range keys {
		sections = append(sections, r.buildSection(k, bundle[k]))
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, sections); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// buildSection picks the presentation shape for one bundle entry.
func (r *Renderer) buildSection(key string, res services.Result) section {
	s := section{Key: key}
	if !res.OK() {
		s.Err = res.Err
		return s
	}

	switch key {
	case "weather":
		var wp weatherPayload
		if err := json.Unmarshal(res.Payload, &wp); err == nil && len(wp.Weather) > 0 {
			s.Weather = &weatherView{
				Location:    wp.Name,
				Description: wp.Weather[0].Description,
				Temperature: fmt.Sprintf("%.1f%s", wp.Main.Temp, r.TempUnit),
				Humidity:    fmt.Sprintf("%.0f%%", wp.Main.Humidity),
				WindSpeed:   fmt.Sprintf("%.1f m/s", wp.Wind.Speed),
			}
			return s
		}
	case "news":
		var np newsPayload
		if err := json.Unmarshal(res.Payload, &np); err == nil && len(np.Data) > 0 {
			for _, a := range np.Data {
				s.Articles = append(s.Articles, articleView{
					Title:       orDefault(a.Title, "Unknown title"),
					Description: orDefault(a.Description, "N/A"),
					PublishedAt: orDefault(a.PublishedAt, "N/A"),
					URL:         a.URL,
					Source:      orDefault(a.Source, "Unknown source"),
					ImageURL:    a.ImageURL,
					Categories:  strings.Join(a.Categories, ", "),
				})
			}
			return s
		}
	}

	// Shape did not match: fall back to the raw payload, pretty-printed.
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, res.Payload, "", "  "); err != nil {
		s.Raw = string(res.Payload)
	} else {
		s.Raw = pretty.String()
	}
	return s
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// digestTemplate mirrors the article container markup of the legacy
// formatter: one div per article with headline, source, date, categories,
// link, and optional image; weather renders as a summary sentence.
const digestTemplate = `{{range .}}{{if .Err}}<div>
  <h2>{{.Key}}</h2>
  <p><strong>Unavailable:</strong> {{.Err}}</p>
</div><hr>
{{else if .Weather}}<div>
  <h2>Weather Update</h2>
  <p>The current weather in {{.Weather.Location}} is: {{.Weather.Description}}.
  The temperature is {{.Weather.Temperature}} with a humidity of {{.Weather.Humidity}}.
  Wind speed is {{.Weather.WindSpeed}}.</p>
</div><hr>
{{else if .Articles}}{{range .Articles}}<div>
  <h2>News Update</h2>
  <p><strong>Headline:</strong> {{.Title}}</p>
  <p>{{.Description}}</p>
  <p><strong>Source:</strong> {{.Source}}</p>
  <p><strong>Published on:</strong> {{.PublishedAt}}</p>
  <p><strong>Categories:</strong> {{.Categories}}</p>
  <p><strong>Read more:</strong> <a href="{{.URL}}" target="_blank">Click here</a></p>
  {{if .ImageURL}}<p><img src="{{.ImageURL}}" alt="Article Image" style="max-width: 100%; height: auto;"></p>{{end}}
</div><hr>
{{end}}{{else}}<div>
  <h2>{{.Key}}</h2>
  <pre>{{.Raw}}</pre>
</div><hr>
{{end}}{{end}}`
