package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNew_RequiresURLAndKey(t *testing.T) {
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Fatalf("expected error for missing URL")
	}
	if _, err := New(Config{URL: "https://example.supabase.co"}); err == nil {
		t.Fatalf("expected error for missing APIKey")
	}
	if _, err := New(Config{URL: "https://example.supabase.co", APIKey: "k"}); err != nil {
		t.Fatalf("New() err = %v", err)
	}
}

func TestExecute_BuildsQuery(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[{"key":"k1"}]`))
	}))
	defer srv.Close()

	c, _ := New(Config{URL: srv.URL, APIKey: "secret"})
	resp, err := c.From("party_state").Select("key").Eq("key", "k1").Limit(1).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() err = %v", err)
	}

	if gotPath != "/rest/v1/party_state" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotQuery != "key=eq.k1&limit=1&select=key" {
		t.Fatalf("query = %q", gotQuery)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization = %q", gotAuth)
	}

	var rows []map[string]string
	if err := resp.JSON(&rows); err != nil {
		t.Fatalf("JSON() err = %v", err)
	}
	if len(rows) != 1 || rows[0]["key"] != "k1" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestExecute_SingleSetsAcceptHeader(t *testing.T) {
	var gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"key":"k1"}`))
	}))
	defer srv.Close()

	c, _ := New(Config{URL: srv.URL, APIKey: "k"})
	if _, err := c.From("t").Single().Execute(context.Background()); err != nil {
		t.Fatalf("Execute() err = %v", err)
	}
	if gotAccept != "application/vnd.pgrst.object+json" {
		t.Fatalf("Accept = %q", gotAccept)
	}
}

func TestExecuteInsert_UpsertHeaders(t *testing.T) {
	var gotPrefer, gotConflict string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		gotConflict = r.Header.Get("On-Conflict")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c, _ := New(Config{URL: srv.URL, APIKey: "k"})
	resp, err := c.From("t").Upsert("key").ExecuteInsert(context.Background(), map[string]string{"key": "k1"})
	if err != nil {
		t.Fatalf("ExecuteInsert() err = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	if gotPrefer != "resolution=merge-duplicates,return=representation" {
		t.Fatalf("Prefer = %q", gotPrefer)
	}
	if gotConflict != "key" {
		t.Fatalf("On-Conflict = %q", gotConflict)
	}
}

func TestResponse_Error(t *testing.T) {
	ok := &Response{StatusCode: 200, Body: []byte("[]")}
	if err := ok.Error(); err != nil {
		t.Fatalf("Error() = %v for 200", err)
	}

	withMessage := &Response{StatusCode: 401, Body: []byte(`{"message":"invalid api key"}`)}
	if err := withMessage.Error(); err == nil || err.Error() != "supabase error: invalid api key" {
		t.Fatalf("Error() = %v", err)
	}

	bare := &Response{StatusCode: 500, Body: []byte("oops")}
	if err := bare.Error(); err == nil {
		t.Fatalf("expected error for 500")
	}
}
