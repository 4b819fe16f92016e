// Package report renders selected records into the digest that gets
// delivered: a plain-text body and an HTML body with the same entries.
package report

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ryosukesatoh/arxiv-digest/internal/fetcher"
)

// ErrNoSubmissions is returned when the unfiltered corpus was empty, which
// usually means the harvest window or categories are wrong.
var ErrNoSubmissions = errors.New("no arXiv submissions for selected timespan")

// Delimiter separates entries in the plain-text body.
var Delimiter = strings.Repeat("_", 77)

// Entry is one rendered record.
type Entry struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	URL      string `json:"url"`
}

// Report is a rendered digest.
type Report struct {
	Name     string    `json:"name"`
	From     time.Time `json:"from"`
	Until    time.Time `json:"until"`
	Timespan string    `json:"timespan"`
	Subject  string    `json:"subject"`
	Total    int       `json:"total"`
	Entries  []Entry   `json:"entries"`
	Text     string    `json:"-"`
	HTML     string    `json:"-"`
}

// Render builds the digest for the selected records. total is the size of
// the unfiltered corpus; zero yields ErrNoSubmissions.
func Render(name string, from, until time.Time, total int, selected []fetcher.Record) (*Report, error) {
	if total == 0 {
		return nil, ErrNoSubmissions
	}

	rep := &Report{
		Name:     name,
		From:     from,
		Until:    until,
		Timespan: Timespan(from, until),
		Total:    total,
		Entries:  make([]Entry, len(selected)),
	}
	rep.Subject = "arXiv summary " + rep.Timespan

	caser := cases.Title(language.English)
	for i, r := range selected {
		rep.Entries[i] = Entry{
			Title:    caser.String(strings.Join(strings.Fields(r.Title), " ")),
			Abstract: r.Abstract,
			URL:      r.URL,
		}
	}

	rep.Text = buildText(rep)
	rep.HTML = buildHTML(rep)
	return rep, nil
}

// Timespan describes the harvest window: "for 2024-01-01" for a single day,
// "from 2024-01-01 to 2024-01-08" otherwise.
func Timespan(from, until time.Time) string {
	f, u := from.Format(time.DateOnly), until.Format(time.DateOnly)
	if f == u {
		return "for " + u
	}
	return fmt.Sprintf("from %s to %s", f, u)
}

// Summary is the counts sentence shown under the greeting.
func (r *Report) Summary() string {
	return fmt.Sprintf("Today there were %d preprints on arXiv, out of which %d were relevant for you.", r.Total, len(r.Entries))
}

func buildText(rep *Report) string {
	var sb strings.Builder

	sb.WriteString(rep.Subject + "\n\n")
	sb.WriteString(fmt.Sprintf("Dear %s,\n", rep.Name))
	sb.WriteString(rep.Summary() + "\n")
	sb.WriteString(Delimiter + "\n")

	for _, e := range rep.Entries {
		sb.WriteString(e.Title + "\n\n")
		sb.WriteString(e.Abstract + "\n")
		sb.WriteString(e.URL + "\n")
		sb.WriteString(Delimiter + "\n")
	}
	return sb.String()
}

func buildHTML(rep *Report) string {
	var sb strings.Builder

	sb.WriteString("<html><head><meta charset=\"utf-8\">")
	sb.WriteString(fmt.Sprintf("<title>%s</title></head><body>", html.EscapeString(rep.Subject)))
	sb.WriteString(fmt.Sprintf("<p>Dear %s,<br>%s<br><hr></p>", html.EscapeString(rep.Name), html.EscapeString(rep.Summary())))

	for _, e := range rep.Entries {
		sb.WriteString(fmt.Sprintf(`<p><a href="%s">%s</a><br><br>`, html.EscapeString(e.URL), html.EscapeString(e.Title)))
		sb.WriteString(html.EscapeString(e.Abstract) + "<br><hr></p>")
	}

	sb.WriteString("</body></html>")
	return sb.String()
}
