package rss

import (
	"context"
	"errors"
	"testing"

	"github.com/ElvertMora/grimoirelab-perceval/internal/cache"
	cachemock "github.com/ElvertMora/grimoirelab-perceval/internal/cache/mock"
	"github.com/ElvertMora/grimoirelab-perceval/internal/core"
	"github.com/ElvertMora/grimoirelab-perceval/internal/fetch"
	fetchmock "github.com/ElvertMora/grimoirelab-perceval/internal/fetch/mock"
)

const feedURL = "http://x/feed"

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Feed</title>
  <id>urn:uuid:60a76c80-d399-11d9-b93c-0003939e0af6</id>
  <updated>2020-01-02T00:00:00Z</updated>
  <entry>
    <title>First</title>
    <link href="http://x/1"/>
    <id>urn:entry:1</id>
    <published>2020-01-01T00:00:00Z</published>
    <updated>2020-01-01T00:00:00Z</updated>
    <summary>first entry</summary>
  </entry>
  <entry>
    <title>Second</title>
    <link href="http://x/2"/>
    <id>urn:entry:2</id>
    <published>2020-01-02T00:00:00Z</published>
    <updated>2020-01-02T00:00:00Z</updated>
    <summary>second entry</summary>
  </entry>
</feed>`

const rssMissingSecondLink = `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <title>broken feed</title>
  <item>
    <title>fine</title>
    <link>http://n/1</link>
    <pubDate>Wed, 01 Jan 2020 00:00:00 GMT</pubDate>
  </item>
  <item>
    <title>linkless</title>
    <pubDate>Thu, 02 Jan 2020 00:00:00 GMT</pubDate>
  </item>
</channel></rss>`

const rssBadSecondDate = `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <title>broken dates</title>
  <item>
    <title>fine</title>
    <link>http://n/1</link>
    <pubDate>Wed, 01 Jan 2020 00:00:00 GMT</pubDate>
  </item>
  <item>
    <title>bad date</title>
    <link>http://n/2</link>
    <pubDate>this is not a date</pubDate>
  </item>
</channel></rss>`

func collect(stream core.Stream) ([]core.Record, error) {
	var recs []core.Record
	for rec, err := range stream {
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func newBackend(t *testing.T, payload string, store cache.Store, tag string) (*Backend, *fetchmock.Client) {
	t.Helper()
	client := &fetchmock.Client{BodyByURL: map[string]string{feedURL: payload}}
	backend, err := New(feedURL, client, store, tag, nil)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	return backend, client
}

func TestFetchYieldsRecordsInFeedOrder(t *testing.T) {
	store := &cachemock.Store{}
	backend, _ := newBackend(t, atomFeed, store, "")

	recs, err := collect(backend.Fetch(context.Background()))
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}

	if recs[0].ID != "http://x/1" || recs[1].ID != "http://x/2" {
		t.Errorf("expected feed order preserved, got %s then %s", recs[0].ID, recs[1].ID)
	}
	if recs[0].UpdatedOn != 1577836800.0 {
		t.Errorf("expected updated_on 1577836800.0, got %v", recs[0].UpdatedOn)
	}
	if recs[1].UpdatedOn != 1577923200.0 {
		t.Errorf("expected updated_on 1577923200.0, got %v", recs[1].UpdatedOn)
	}

	for i, rec := range recs {
		if rec.Category != "entry" {
			t.Errorf("record %d: expected category entry, got %q", i, rec.Category)
		}
		if rec.Origin != feedURL {
			t.Errorf("record %d: expected origin %s, got %s", i, feedURL, rec.Origin)
		}
		if rec.Tag != feedURL {
			t.Errorf("record %d: expected tag to default to the origin, got %s", i, rec.Tag)
		}
		if rec.BackendName != "rss" || rec.BackendVersion == "" {
			t.Errorf("record %d: expected backend name and version, got %s %s", i, rec.BackendName, rec.BackendVersion)
		}
		if rec.UUID != core.ItemUUID(feedURL, rec.ID) {
			t.Errorf("record %d: expected uuid derived from origin and id", i)
		}
		if rec.Timestamp <= 0 {
			t.Errorf("record %d: expected a positive timestamp, got %v", i, rec.Timestamp)
		}
		if rec.ID != rec.Entry.Link {
			t.Errorf("record %d: expected id to equal the entry link", i)
		}
	}

	if store.CallCount("commit") != 1 {
		t.Fatalf("expected exactly one commit, got %d", store.CallCount("commit"))
	}
	if len(store.Unit) != 1 || store.Unit[0] != atomFeed {
		t.Errorf("expected the raw payload committed verbatim")
	}
}

func TestFetchCommitsBeforeFirstRecordIsConsumed(t *testing.T) {
	store := &cachemock.Store{}
	backend, _ := newBackend(t, atomFeed, store, "")

	consumed := 0
	for _, err := range backend.Fetch(context.Background()) {
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if store.CallCount("commit") != 1 {
			t.Fatal("expected the payload committed before the first record is handed out")
		}
		consumed++
		break
	}
	if consumed != 1 {
		t.Fatalf("expected to stop after one record, consumed %d", consumed)
	}

	// abandoning the stream is side-effect free
	if store.CallCount("commit") != 1 {
		t.Errorf("expected no further commits after breaking, got %d", store.CallCount("commit"))
	}
}

func TestFetchWithCustomTag(t *testing.T) {
	backend, _ := newBackend(t, atomFeed, nil, "tech-news")

	recs, err := collect(backend.Fetch(context.Background()))
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	for _, rec := range recs {
		if rec.Tag != "tech-news" {
			t.Errorf("expected custom tag, got %q", rec.Tag)
		}
	}
}

func TestFetchNetworkErrorLeavesCacheUntouched(t *testing.T) {
	store := &cachemock.Store{Unit: []string{"payload from last week"}}
	client := &fetchmock.Client{
		ErrByURL: map[string]error{
			feedURL: &fetch.NetworkError{URL: feedURL, Err: errors.New("connection refused")},
		},
	}
	backend, err := New(feedURL, client, store, "", nil)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}

	recs, err := collect(backend.Fetch(context.Background()))
	if err == nil {
		t.Fatal("expected the network failure to surface")
	}
	var netErr *fetch.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *fetch.NetworkError, got %T", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no records before the failure, got %d", len(recs))
	}
	if store.CallCount("commit") != 0 {
		t.Errorf("expected the cache untouched, got %d commits", store.CallCount("commit"))
	}
	if got, _ := store.Retrieve(); got != "payload from last week" {
		t.Errorf("expected the previous payload preserved, got %q", got)
	}
}

func TestFetchErrorStatusLeavesCacheUntouched(t *testing.T) {
	store := &cachemock.Store{Unit: []string{"previous payload"}}
	client := &fetchmock.Client{
		ErrByURL: map[string]error{
			feedURL: &fetch.StatusError{URL: feedURL, StatusCode: 404, Status: "404 Not Found"},
		},
	}
	backend, err := New(feedURL, client, store, "", nil)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}

	_, err = collect(backend.Fetch(context.Background()))
	var statusErr *fetch.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *fetch.StatusError, got %v", err)
	}
	if statusErr.StatusCode != 404 {
		t.Errorf("expected status 404, got %d", statusErr.StatusCode)
	}
	if store.CallCount("commit") != 0 {
		t.Errorf("expected the cache untouched, got %d commits", store.CallCount("commit"))
	}
}

func TestFetchEmptyPayloadCommitsAndYieldsNothing(t *testing.T) {
	store := &cachemock.Store{}
	backend, _ := newBackend(t, "", store, "")

	recs, err := collect(backend.Fetch(context.Background()))
	if err != nil {
		t.Fatalf("expected an empty feed to be a valid, empty run: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected 0 records, got %d", len(recs))
	}
	if store.CallCount("commit") != 1 {
		t.Fatalf("expected the empty payload committed, got %d commits", store.CallCount("commit"))
	}
	if len(store.Unit) != 1 || store.Unit[0] != "" {
		t.Errorf("expected the empty payload stored verbatim, got %v", store.Unit)
	}
}

func TestFetchEntryWithoutLinkFailsMidStream(t *testing.T) {
	store := &cachemock.Store{}
	backend, _ := newBackend(t, rssMissingSecondLink, store, "")

	recs, err := collect(backend.Fetch(context.Background()))
	if err == nil {
		t.Fatal("expected the linkless entry to fail the stream")
	}
	var missing *FieldMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *FieldMissingError, got %T", err)
	}
	if len(recs) != 1 || recs[0].ID != "http://n/1" {
		t.Errorf("expected the record before the failure to have been yielded, got %v", recs)
	}

	// the payload was already committed when the parse succeeded
	if store.CallCount("commit") != 1 {
		t.Errorf("expected the payload committed despite the envelope failure, got %d commits", store.CallCount("commit"))
	}
}

func TestFetchEntryWithBadDateFailsMidStream(t *testing.T) {
	backend, _ := newBackend(t, rssBadSecondDate, &cachemock.Store{}, "")

	recs, err := collect(backend.Fetch(context.Background()))
	if err == nil {
		t.Fatal("expected the unparseable date to fail the stream")
	}
	var dateErr *DateParseError
	if !errors.As(err, &dateErr) {
		t.Fatalf("expected *DateParseError, got %T", err)
	}
	if dateErr.Value != "this is not a date" {
		t.Errorf("expected the raw published value in the error, got %q", dateErr.Value)
	}
	if len(recs) != 1 {
		t.Errorf("expected one record before the failure, got %d", len(recs))
	}
}

func TestFetchAgainReRunsThePipeline(t *testing.T) {
	store := &cachemock.Store{}
	backend, client := newBackend(t, atomFeed, store, "")

	first, err := collect(backend.Fetch(context.Background()))
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	second, err := collect(backend.Fetch(context.Background()))
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}

	if len(client.Calls) != 2 {
		t.Errorf("expected each consumption to hit the network, got %d calls", len(client.Calls))
	}
	if store.CallCount("commit") != 2 {
		t.Errorf("expected each consumption to commit, got %d", store.CallCount("commit"))
	}
	if len(first) != len(second) {
		t.Fatalf("expected both runs to yield the same records, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].UUID != second[i].UUID {
			t.Errorf("record %d: expected stable uuids across runs", i)
		}
	}
}

func TestFetchFromCacheReplaysWithoutNetwork(t *testing.T) {
	store := &cachemock.Store{}
	backend, client := newBackend(t, atomFeed, store, "")

	live, err := collect(backend.Fetch(context.Background()))
	if err != nil {
		t.Fatalf("live fetch failed: %v", err)
	}

	replayed, err := collect(backend.FetchFromCache(context.Background()))
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if len(client.Calls) != 1 {
		t.Errorf("expected the replay to stay off the network, got %d calls", len(client.Calls))
	}
	if len(replayed) != len(live) {
		t.Fatalf("expected the replay to yield the live records, got %d and %d", len(replayed), len(live))
	}
	for i := range live {
		if replayed[i].ID != live[i].ID {
			t.Errorf("record %d: expected id %s, got %s", i, live[i].ID, replayed[i].ID)
		}
		if replayed[i].UpdatedOn != live[i].UpdatedOn {
			t.Errorf("record %d: expected updated_on %v, got %v", i, live[i].UpdatedOn, replayed[i].UpdatedOn)
		}
		if replayed[i].UUID != live[i].UUID {
			t.Errorf("record %d: expected matching uuids", i)
		}
	}
}

func TestFetchFromCacheTwiceIsIdempotent(t *testing.T) {
	store := &cachemock.Store{Unit: []string{atomFeed}}
	backend, _ := newBackend(t, atomFeed, store, "")

	first, err := collect(backend.FetchFromCache(context.Background()))
	if err != nil {
		t.Fatalf("first replay failed: %v", err)
	}
	second, err := collect(backend.FetchFromCache(context.Background()))
	if err != nil {
		t.Fatalf("second replay failed: %v", err)
	}

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 records per replay, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].UpdatedOn != second[i].UpdatedOn {
			t.Errorf("record %d: expected identical replays", i)
		}
	}
	if store.CallCount("commit") != 0 {
		t.Errorf("expected replays to never write the store, got %d commits", store.CallCount("commit"))
	}
}

func TestFetchFromCacheWithoutStoreFails(t *testing.T) {
	backend, client := newBackend(t, atomFeed, nil, "")

	_, err := collect(backend.FetchFromCache(context.Background()))
	if !errors.Is(err, core.ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
	if len(client.Calls) != 0 {
		t.Errorf("expected no network traffic, got %d calls", len(client.Calls))
	}
}

func TestFetchFromCacheEmptyStoreReportsNotFound(t *testing.T) {
	backend, _ := newBackend(t, atomFeed, &cachemock.Store{}, "")

	_, err := collect(backend.FetchFromCache(context.Background()))
	if !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an empty store, got %v", err)
	}
}

func TestNewRequiresURLAndClient(t *testing.T) {
	if _, err := New("", &fetchmock.Client{}, nil, "", nil); err == nil {
		t.Error("expected an error without a url")
	}
	if _, err := New(feedURL, nil, nil, "", nil); err == nil {
		t.Error("expected an error without a client")
	}
}
