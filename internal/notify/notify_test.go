package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

func TestNotifierFiltersAndDelivers(t *testing.T) {
	var mu sync.Mutex
	var got []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		got = append(got, body)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier([]Sender{NewDiscordSender(srv.URL)}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.True(t, n.Enabled())

	ctx := context.Background()
	require.NoError(t, n.NotifyEvent(ctx, domain.NewEvent(domain.EventDeposit, 0, "0xabc", nil)))
	require.NoError(t, n.NotifyEvent(ctx, domain.NewEvent(domain.EventOrderHalted, 7, "0xabc", map[string]string{"reason": "invariant"})))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Contains(t, got[0]["content"], "OrderHalted #7")
	assert.Contains(t, got[0]["content"], "reason: invariant")
}

func TestTelegramReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	err := s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestBodyIsSorted(t *testing.T) {
	e := domain.Event{Type: domain.EventOrderExecuted, OrderID: 1, Detail: map[string]string{"b": "2", "a": "1"}}
	assert.Equal(t, "a: 1\nb: 2", Body(e))
	assert.Equal(t, "OrderExecuted #1", Title(e))
}
