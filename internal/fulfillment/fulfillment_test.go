package fulfillment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitSuccess(t *testing.T) {
	var received Submission
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fulfillments" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode submission: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"fulfillment_id": "ff-42"})
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(srv.URL)
	id, err := client.Submit(context.Background(), Submission{
		OrderID:  "o1",
		UserID:   "u1",
		Items:    []SubmissionItem{{ProductID: "p1", SKU: "SKU-1", Quantity: 2}},
		Total:    1000,
		Currency: "INR",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "ff-42" {
		t.Fatalf("expected ff-42, got %s", id)
	}
	if received.OrderID != "o1" || len(received.Items) != 1 {
		t.Fatalf("submission not delivered intact: %+v", received)
	}
}

func TestSubmitServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(srv.URL)
	if _, err := client.Submit(context.Background(), Submission{OrderID: "o1"}); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestSubmitEmptyFulfillmentID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(srv.URL)
	if _, err := client.Submit(context.Background(), Submission{OrderID: "o1"}); err == nil {
		t.Fatal("expected error on missing fulfillment id")
	}
}
