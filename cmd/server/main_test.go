package main

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToEvent_TextBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/items/root/children?x=1", strings.NewReader(`{"name":"A"}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Add("Cookie", "a=1")
	r.Header.Add("Cookie", "session_token=t")

	req, err := toEvent(r)
	require.NoError(t, err)
	assert.Equal(t, "/api/items/root/children", req.Path)
	assert.Equal(t, `{"name":"A"}`, req.Body)
	assert.False(t, req.IsBase64Encoded)
	assert.Equal(t, "1", req.QueryStringParameters["x"])
	assert.Equal(t, "a=1; session_token=t", req.Headers["Cookie"])
}

func TestToEvent_BinaryBody(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0x00}
	r := httptest.NewRequest(http.MethodPut, "/items/root/content?name=a.png", bytes.NewReader(payload))
	r.Header.Set("Content-Type", "image/png")

	req, err := toEvent(r)
	require.NoError(t, err)
	assert.True(t, req.IsBase64Encoded)
	assert.Equal(t, base64.StdEncoding.EncodeToString(payload), req.Body)
}

func TestWriteResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	writeResponse(rec, events.APIGatewayProxyResponse{
		StatusCode:        http.StatusOK,
		Body:              base64.StdEncoding.EncodeToString([]byte("img")),
		IsBase64Encoded:   true,
		Headers:           map[string]string{"Content-Type": "image/png"},
		MultiValueHeaders: map[string][]string{"Set-Cookie": {"a=1", "b=2"}},
	})
	assert.Equal(t, "img", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{"a=1", "b=2"}, rec.Header().Values("Set-Cookie"))
}
