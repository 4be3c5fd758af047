package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"uberfix/internal/domain"
)

func TestHTTPClientSend(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"wa-42","status":"queued"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "secret", time.Second, DefaultBreakerSettings())
	id, err := c.Send(context.Background(), Message{
		RequestID: "req-1",
		Channel:   domain.ChannelWhatsApp,
		To:        "+201001234567",
		Body:      "hello",
	})
	require.NoError(t, err)
	require.Equal(t, "wa-42", id)
	require.Equal(t, "whatsapp", got.Channel)
	require.Equal(t, "req-1", got.Reference)
}

func TestHTTPClientRequiresRecipient(t *testing.T) {
	c := NewHTTPClient("http://gateway.invalid", "", time.Second, DefaultBreakerSettings())
	_, err := c.Send(context.Background(), Message{Body: "hi"})
	require.Error(t, err)
}

func TestHTTPClientBreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var lastState float64
	settings := BreakerSettings{
		MaxFailures:          2,
		OpenTimeout:          time.Minute,
		HalfOpenMaxSuccesses: 1,
		OnStateChange:        func(s float64) { lastState = s },
	}
	c := NewHTTPClient(srv.URL, "", time.Second, settings)
	msg := Message{Channel: domain.ChannelSMS, To: "+201001234567", Body: "hi"}

	for i := 0; i < 2; i++ {
		_, err := c.Send(context.Background(), msg)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrCircuitOpen)
	}
	_, err := c.Send(context.Background(), msg)
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Equal(t, "open", c.State())
	require.Equal(t, float64(2), lastState)
}

func TestHTTPClientPermanentErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid phone"}}`))
	}))
	defer srv.Close()

	settings := DefaultBreakerSettings()
	settings.MaxFailures = 1
	c := NewHTTPClient(srv.URL, "", time.Second, settings)
	msg := Message{Channel: domain.ChannelSMS, To: "123", Body: "hi"}

	for i := 0; i < 3; i++ {
		_, err := c.Send(context.Background(), msg)
		require.True(t, IsPermanent(err))
	}
	require.Equal(t, "closed", c.State())
}
