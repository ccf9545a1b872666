package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradeedge/internal/models"
)

// feedServer is a fake upstream that pushes a fixed batch of updates to
// every connection.
func feedServer(t *testing.T, updates []models.PriceUpdate) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, u := range updates {
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}))
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestClientConsumesUpdates(t *testing.T) {
	updates := []models.PriceUpdate{
		{AlertID: 1, Price: 172},
		{AlertID: 1, Price: 186},
		{AlertID: 2, Price: 99.5},
	}
	ts := feedServer(t, updates)
	defer ts.Close()

	var mu sync.Mutex
	var received []models.PriceUpdate
	done := make(chan struct{})

	client := NewClient(Config{URL: wsURL(ts), MaxRetries: 3, BaseDelay: 10 * time.Millisecond},
		func(u models.PriceUpdate) {
			mu.Lock()
			received = append(received, u)
			if len(received) == len(updates) {
				close(done)
			}
			mu.Unlock()
		}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("updates not consumed in time")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, want := range updates {
		if received[i].AlertID != want.AlertID || received[i].Price != want.Price {
			t.Errorf("received[%d] = %+v, want %+v", i, received[i], want)
		}
	}
}

func TestClientDropsMalformedUpdates(t *testing.T) {
	updates := []models.PriceUpdate{
		{AlertID: 0, Price: 100}, // invalid alert id
		{AlertID: 1, Price: -5},  // invalid price
		{AlertID: 1, Price: 172}, // valid
	}
	ts := feedServer(t, updates)
	defer ts.Close()

	got := make(chan models.PriceUpdate, 1)
	client := NewClient(Config{URL: wsURL(ts), MaxRetries: 3, BaseDelay: 10 * time.Millisecond},
		func(u models.PriceUpdate) { got <- u }, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	select {
	case u := <-got:
		if u.AlertID != 1 || u.Price != 172 {
			t.Errorf("handler saw %+v, want only the valid update", u)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("valid update never arrived")
	}
}

func TestClientGivesUpAfterRetries(t *testing.T) {
	client := NewClient(Config{URL: "ws://127.0.0.1:1/feed", MaxRetries: 2, BaseDelay: time.Millisecond},
		func(models.PriceUpdate) {}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Run(ctx); err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
}
