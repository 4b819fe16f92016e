package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosukesatoh/arxiv-digest/internal/retry"
)

const sampleListRecords = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <responseDate>2024-01-02T00:00:00Z</responseDate>
  <ListRecords>
    <record>
      <header><identifier>oai:arXiv.org:2401.00001</identifier></header>
      <metadata>
        <arXiv xmlns="http://arxiv.org/OAI/arXiv/">
          <id>2401.00001</id>
          <created>2024-01-01</created>
          <authors>
            <author><keyname>Smith</keyname><forenames>John</forenames></author>
            <author><keyname>Noether</keyname></author>
          </authors>
          <title>  Quantum Error
  Correction  </title>
          <abstract>  We study
codes.  </abstract>
        </arXiv>
      </metadata>
    </record>
    <record>
      <header status="deleted"><identifier>oai:arXiv.org:2401.00002</identifier></header>
    </record>
    <record>
      <header><identifier>oai:arXiv.org:2401.00003</identifier></header>
      <metadata>
        <arXiv xmlns="http://arxiv.org/OAI/arXiv/">
          <id>2401.00003</id>
          <created>2024-01-01</created>
          <authors><author><keyname>Lovelace</keyname><forenames>Ada</forenames></author></authors>
          <title>Analytical Engines</title>
          <abstract>Notes.</abstract>
        </arXiv>
      </metadata>
    </record>
  </ListRecords>
</OAI-PMH>`

const noRecordsMatch = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <error code="noRecordsMatch">No records match</error>
</OAI-PMH>`

const pagedListRecords = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <ListRecords>
    <record>
      <header><identifier>oai:arXiv.org:2401.00010</identifier></header>
      <metadata>
        <arXiv xmlns="http://arxiv.org/OAI/arXiv/">
          <id>2401.00010</id>
          <created>2024-01-01</created>
          <authors><author><keyname>Hopper</keyname><forenames>Grace</forenames></author></authors>
          <title>Compilers</title>
          <abstract>First page.</abstract>
        </arXiv>
      </metadata>
    </record>
    <resumptionToken cursor="0" completeListSize="1500">6230178|1001</resumptionToken>
  </ListRecords>
</OAI-PMH>`

func newTestFetcher(ts *httptest.Server, opts Options) *OAIFetcher {
	opts.BaseURL = ts.URL
	f := NewOAIFetcher(opts)
	f.client.Transport = ts.Client().Transport
	return f
}

func serveBody(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(body))
	}
}

var (
	day1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day8 = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
)

func TestFetchParsesListRecords(t *testing.T) {
	ts := httptest.NewServer(serveBody(sampleListRecords))
	defer ts.Close()

	records, err := newTestFetcher(ts, Options{}).Fetch(context.Background(), day1, day1, []string{"physics:quant-ph"})
	require.NoError(t, err)
	require.Len(t, records, 2, "the deleted record is skipped")

	r := records[0]
	assert.Equal(t, "quantum error   correction", r.Title)
	assert.Equal(t, "we study codes.", r.Abstract)
	assert.Equal(t, "quantum error   correction. we study codes.", r.SearchableText)
	assert.Equal(t, "https://arxiv.org/abs/2401.00001", r.URL)
	assert.Equal(t, "2024-01-01", r.Created)
	assert.Equal(t, "physics:quant-ph", r.Category)
	assert.Equal(t, []string{"john smith", " noether"}, r.Authors, "missing forenames leave a leading space")

	assert.Equal(t, "analytical engines", records[1].Title)
}

func TestFetchQueryParameters(t *testing.T) {
	var queries []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		w.Write([]byte(noRecordsMatch))
	}))
	defer ts.Close()

	_, err := newTestFetcher(ts, Options{}).Fetch(context.Background(), day1, day8, []string{"cs", "math"})
	require.NoError(t, err)

	require.Len(t, queries, 2, "one request per category")
	for _, want := range []string{"verb=ListRecords", "from=2024-01-01", "until=2024-01-08", "metadataPrefix=arXiv", "set=cs"} {
		assert.Contains(t, queries[0], want)
	}
	assert.Contains(t, queries[1], "set=math")
}

func TestFetchConcatenatesInCategoryOrder(t *testing.T) {
	ts := httptest.NewServer(serveBody(sampleListRecords))
	defer ts.Close()

	records, err := newTestFetcher(ts, Options{}).Fetch(context.Background(), day1, day1, []string{"cs", "math"})
	require.NoError(t, err)

	// The same records appear twice, once per category.
	require.Len(t, records, 4)
	var cats []string
	for _, r := range records {
		cats = append(cats, r.Category)
	}
	assert.Equal(t, []string{"cs", "cs", "math", "math"}, cats)
	assert.Equal(t, records[0].URL, records[2].URL, "duplicates across categories are kept")
}

func TestFetchNoRecordsMatch(t *testing.T) {
	ts := httptest.NewServer(serveBody(noRecordsMatch))
	defer ts.Close()

	records, err := newTestFetcher(ts, Options{}).Fetch(context.Background(), day1, day1, []string{"cs"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchUsesFirstPageOnly(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Empty(t, r.URL.Query().Get("resumptionToken"))
		w.Write([]byte(pagedListRecords))
	}))
	defer ts.Close()

	records, err := newTestFetcher(ts, Options{}).Fetch(context.Background(), day1, day1, []string{"cs"})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "https://arxiv.org/abs/2401.00010", records[0].URL)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "the resumption token is not followed")
}

func TestFetchOAIError(t *testing.T) {
	ts := httptest.NewServer(serveBody(`<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"><error code="badArgument">bad set</error></OAI-PMH>`))
	defer ts.Close()

	_, err := newTestFetcher(ts, Options{}).Fetch(context.Background(), day1, day1, []string{"nope"})
	require.ErrorIs(t, err, ErrOAI)
	assert.ErrorContains(t, err, "badArgument")
}

func TestFetchBadStatusCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := newTestFetcher(ts, Options{}).Fetch(context.Background(), day1, day1, []string{"cs"})
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "cs", fetchErr.Category)
	assert.ErrorContains(t, err, "unexpected status 500")
}

func TestFetchInvalidXML(t *testing.T) {
	ts := httptest.NewServer(serveBody("this is not xml"))
	defer ts.Close()

	_, err := newTestFetcher(ts, Options{}).Fetch(context.Background(), day1, day1, []string{"cs"})
	assert.ErrorContains(t, err, "failed to parse XML")
}

func TestFetchWrongRootElement(t *testing.T) {
	ts := httptest.NewServer(serveBody(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
	defer ts.Close()

	_, err := newTestFetcher(ts, Options{}).Fetch(context.Background(), day1, day1, []string{"cs"})
	assert.Error(t, err, "a non OAI-PMH document is rejected")
}

func TestFetchFailureAbortsRun(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("set") == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(sampleListRecords))
	}))
	defer ts.Close()

	records, err := newTestFetcher(ts, Options{}).Fetch(context.Background(), day1, day1, []string{"bad", "cs"})
	require.Error(t, err, "the first failing category aborts the fetch")
	assert.Nil(t, records, "no partial results")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "fetching stops after the failure")
}

func TestFetchSkipFailedCategories(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("set") == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(sampleListRecords))
	}))
	defer ts.Close()

	records, err := newTestFetcher(ts, Options{SkipFailed: true}).Fetch(context.Background(), day1, day1, []string{"bad", "cs"})
	require.NoError(t, err)
	assert.Len(t, records, 2, "records from the healthy category")
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sampleListRecords))
	}))
	defer ts.Close()

	opts := Options{Retry: retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond}}
	records, err := newTestFetcher(ts, opts).Fetch(context.Background(), day1, day1, []string{"cs"})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchRetriesClientTimeout(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		w.Write([]byte(sampleListRecords))
	}))
	defer ts.Close()

	opts := Options{
		Timeout: 50 * time.Millisecond,
		Retry:   retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond},
	}
	records, err := newTestFetcher(ts, opts).Fetch(context.Background(), day1, day1, []string{"cs"})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchNoRetryByDefault(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := newTestFetcher(ts, Options{}).Fetch(context.Background(), day1, day1, []string{"cs"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a single request without retry policy")
}
