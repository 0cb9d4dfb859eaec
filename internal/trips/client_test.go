package trips

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientCreateParsesResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if _, ok := body["rider"]; !ok {
			t.Error("request body missing rider")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"sk":"trip-9","rider":{"userId":"u1","firstName":"Rhea","lastName":"Rivera"},"fare":{"total":120.5},"driver":{"userId":"d1","name":"Dan Cruz"}}}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second)
	rec, err := c.Create(context.Background(), tripRequest().Data.Rider)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.SK != "trip-9" || rec.Fare.Total != 120.5 {
		t.Fatalf("bad record: %+v", rec)
	}
	if rec.Driver == nil || rec.Driver.FullName() != "Dan Cruz" {
		t.Fatalf("driver not parsed: %+v", rec.Driver)
	}
}

func TestClientCreateNon2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no drivers in area", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second)
	if _, err := c.Create(context.Background(), tripRequest().Data.Rider); err == nil {
		t.Fatal("expected error on 503")
	} else if !strings.Contains(err.Error(), "503") {
		t.Fatalf("error should carry the status: %v", err)
	}
}

func TestClientCreateRejectsMissingTripID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second)
	if _, err := c.Create(context.Background(), tripRequest().Data.Rider); err == nil {
		t.Fatal("expected error when response has no trip id")
	}
}
