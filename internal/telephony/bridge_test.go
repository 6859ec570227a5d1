package telephony

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBridge_PlaceCallAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/outbound-call":
			var body map[string]string
			if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
				return
			}
			assert.Equal(t, "+34600000000", body["number"])
			assert.NotEmpty(t, body["prompt"])
			assert.NotEmpty(t, body["first_message"])
			io.WriteString(w, `{"success":true,"callSid":"CA1"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/call-status/CA1":
			io.WriteString(w, `{"status":"in-progress"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	b := NewHTTPBridge(srv.URL+"/", nil)
	sid, err := b.PlaceCall(context.Background(), BuildScript(testRequest))
	require.NoError(t, err)
	assert.Equal(t, "CA1", sid)

	st, err := b.CallStatus(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st)
}

func TestHTTPBridge_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":false,"error":"number blocked"}`)
	}))
	defer srv.Close()

	_, err := NewHTTPBridge(srv.URL, nil).PlaceCall(context.Background(), CallScript{Number: "+1"})
	require.ErrorIs(t, err, ErrCallRejected)
	assert.Contains(t, err.Error(), "number blocked")
}

func TestHTTPBridge_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := NewHTTPBridge(srv.URL, nil)
	_, err := b.PlaceCall(context.Background(), CallScript{Number: "+1"})
	assert.ErrorIs(t, err, ErrCallRejected)
	_, err = b.CallStatus(context.Background(), "CA1")
	assert.Error(t, err)
}
