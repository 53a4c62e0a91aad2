package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhook_Notify(t *testing.T) {
	var got Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer server.Close()

	require.NoError(t, NewWebhook(server.URL).Notify(context.Background(), "harvested 10"))
	assert.Equal(t, "text", got.MsgType)
	assert.Equal(t, "harvested 10", got.Text.Content)
}

func TestWebhook_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"errcode":310000,"errmsg":"keywords not in content"}`))
	}))
	defer server.Close()

	err := NewWebhook(server.URL+"/down").Notify(context.Background(), "x")
	assert.ErrorContains(t, err, "502")
	err = NewWebhook(server.URL).Notify(context.Background(), "x")
	assert.ErrorContains(t, err, "keywords not in content")
}
