package fetcher

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ryosukesatoh/arxiv-digest/internal/retry"
)

const (
	// DefaultBaseURL is the arXiv OAI-PMH endpoint.
	DefaultBaseURL = "https://export.arxiv.org/oai2"
	// AbsPrefix turns an arXiv identifier into its abstract page URL.
	AbsPrefix      = "https://arxiv.org/abs/"
	metadataPrefix = "arXiv"
)

// OAI-PMH ListRecords XML structures

type oaiResponse struct {
	XMLName         xml.Name    `xml:"http://www.openarchives.org/OAI/2.0/ OAI-PMH"`
	Error           *oaiError   `xml:"error"`
	Records         []oaiRecord `xml:"ListRecords>record"`
	ResumptionToken string      `xml:"ListRecords>resumptionToken"`
}

type oaiError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

type oaiRecord struct {
	Header   oaiHeader `xml:"header"`
	Metadata struct {
		ArXiv *arxivMetadata `xml:"http://arxiv.org/OAI/arXiv/ arXiv"`
	} `xml:"metadata"`
}

type oaiHeader struct {
	Status string `xml:"status,attr"`
}

type arxivMetadata struct {
	ID       string        `xml:"id"`
	Created  string        `xml:"created"`
	Title    string        `xml:"title"`
	Abstract string        `xml:"abstract"`
	Authors  []arxivAuthor `xml:"authors>author"`
}

type arxivAuthor struct {
	Keyname   string `xml:"keyname"`
	Forenames string `xml:"forenames"`
}

// Options configures an OAIFetcher. Zero values fall back to defaults.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// Retry is applied per category request. The zero value disables it.
	Retry retry.Config
	// SkipFailed logs a failed category and continues instead of aborting.
	SkipFailed bool
}

// OAIFetcher harvests arXiv metadata through the OAI-PMH ListRecords verb.
type OAIFetcher struct {
	client     *http.Client
	baseURL    string
	retry      retry.Config
	skipFailed bool
}

func NewOAIFetcher(opts Options) *OAIFetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	return &OAIFetcher{
		client:     &http.Client{Timeout: opts.Timeout},
		baseURL:    opts.BaseURL,
		retry:      opts.Retry,
		skipFailed: opts.SkipFailed,
	}
}

// Fetch harvests every category in order and concatenates the results.
func (f *OAIFetcher) Fetch(ctx context.Context, from, until time.Time, categories []string) ([]Record, error) {
	var corpus []Record
	for _, cat := range categories {
		log.Printf("Fetching category %s...", cat)

		var records []Record
		err := retry.WithBackoff(ctx, f.retry, func(ctx context.Context) error {
			var err error
			records, err = f.fetchCategory(ctx, from, until, cat)
			return err
		})
		if err != nil {
			fetchErr := &FetchError{Category: cat, Err: err}
			if f.skipFailed && ctx.Err() == nil {
				log.Printf("WARNING: skipping category: %v", fetchErr)
				continue
			}
			return nil, fetchErr
		}

		log.Printf("Fetched %d records for %s", len(records), cat)
		corpus = append(corpus, records...)
	}
	return corpus, nil
}

func (f *OAIFetcher) requestURL(from, until time.Time, category string) string {
	query := url.Values{}
	query.Set("verb", "ListRecords")
	query.Set("from", from.Format(time.DateOnly))
	query.Set("until", until.Format(time.DateOnly))
	query.Set("metadataPrefix", metadataPrefix)
	query.Set("set", category)
	return fmt.Sprintf("%s?%s", f.baseURL, query.Encode())
}

func (f *OAIFetcher) fetchCategory(ctx context.Context, from, until time.Time, category string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.requestURL(from, until, category), nil)
	if err != nil {
		return nil, fmt.Errorf("oai: failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oai: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oai: %w", &retry.StatusError{Code: resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oai: failed to read response: %w", err)
	}

	return parseListRecords(body, category)
}

// ErrOAI wraps protocol-level errors reported inside an OAI-PMH response.
var ErrOAI = errors.New("oai: protocol error")

func parseListRecords(body []byte, category string) ([]Record, error) {
	var doc oaiResponse
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("oai: failed to parse XML: %w", err)
	}

	if doc.Error != nil {
		// noRecordsMatch is how the protocol says "empty window".
		if doc.Error.Code == "noRecordsMatch" {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrOAI, doc.Error.Code, strings.TrimSpace(doc.Error.Message))
	}

	if strings.TrimSpace(doc.ResumptionToken) != "" {
		log.Printf("WARNING: %s has more records than one response holds; only the first page is used", category)
	}

	records := make([]Record, 0, len(doc.Records))
	for _, r := range doc.Records {
		meta := r.Metadata.ArXiv
		if r.Header.Status == "deleted" || meta == nil {
			continue
		}
		records = append(records, newRecord(meta, category))
	}
	return records, nil
}

func newRecord(meta *arxivMetadata, category string) Record {
	title := normalizeText(meta.Title)
	abstract := normalizeText(meta.Abstract)

	authors := make([]string, len(meta.Authors))
	for i, a := range meta.Authors {
		authors[i] = strings.ToLower(strings.TrimSpace(a.Forenames)) + " " + strings.ToLower(strings.TrimSpace(a.Keyname))
	}

	return Record{
		Title:          title,
		Abstract:       abstract,
		SearchableText: title + ". " + abstract,
		URL:            AbsPrefix + normalizeText(meta.ID),
		Authors:        authors,
		Created:        normalizeText(meta.Created),
		Category:       category,
	}
}

func normalizeText(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "\n", " ")
}
