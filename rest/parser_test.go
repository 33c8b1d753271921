package rest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/pilab-dev/persona-client/log"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_StatusMismatch(t *testing.T) {
	p := NewParser(nil)

	t.Run("404 is not found", func(t *testing.T) {
		_, err := p.Parse(context.Background(), "http://x/y", Options{}, &Response{StatusCode: http.StatusNotFound})
		var nf *perrors.NotFoundError
		require.ErrorAs(t, err, &nf)
		var remote *perrors.RemoteError
		assert.False(t, errors.As(err, &remote))
	})

	t.Run("other status is remote error", func(t *testing.T) {
		_, err := p.Parse(context.Background(), "http://x/y", Options{}, &Response{StatusCode: http.StatusBadGateway, Body: []byte("oops")})
		var remote *perrors.RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, http.StatusBadGateway, remote.StatusCode)
		assert.Equal(t, "oops", remote.Body)
	})

	t.Run("204 expected when no body", func(t *testing.T) {
		_, err := p.Parse(context.Background(), "http://x", Options{NoResponseBody: true}, &Response{StatusCode: http.StatusOK})
		assert.Error(t, err)

		out, err := p.Parse(context.Background(), "http://x", Options{NoResponseBody: true}, &Response{StatusCode: http.StatusNoContent})
		require.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("explicit expected status", func(t *testing.T) {
		out, err := p.Parse(context.Background(), "http://x", Options{ExpectedStatus: http.StatusAccepted},
			&Response{StatusCode: http.StatusAccepted, Body: []byte(`{"id":"1"}`)})
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"1"}`, string(out))
	})
}

func TestParser_Body(t *testing.T) {
	p := NewParser(nil)

	tests := []struct {
		name      string
		opts      Options
		body      string
		want      string
		malformed bool
	}{
		{"json", Options{}, `{"a":1}`, `{"a":1}`, false},
		{"raw", Options{RawResponse: true}, "not json", "not json", false},
		{"not json", Options{}, "not json", "", true},
		{"empty body", Options{}, "", "", true},
		{"empty object", Options{}, "{}", "", true},
		{"null", Options{}, "null", "", true},
		{"empty array", Options{}, "[]", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.Parse(context.Background(), "http://x", tt.opts, &Response{StatusCode: http.StatusOK, Body: []byte(tt.body)})
			if tt.malformed {
				var mr *perrors.MalformedResponseError
				require.ErrorAs(t, err, &mr)
				assert.Equal(t, tt.body, mr.Body)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestParser_AnySuccess(t *testing.T) {
	p := NewParser(nil)
	opts := Options{AnySuccess: true, RawResponse: true}

	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent} {
		_, err := p.Parse(context.Background(), "http://x", opts, &Response{StatusCode: status})
		assert.NoError(t, err, "status %d", status)
	}

	_, err := p.Parse(context.Background(), "http://x", opts, &Response{StatusCode: http.StatusMultipleChoices})
	assert.Error(t, err)
}

func TestParser_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	p := NewParser(log.NewZerologAdapterWithWriter(&buf, zerolog.DebugLevel))
	opts := Options{BearerToken: "secret-token"}

	_, err := p.Parse(context.Background(), "http://x/status", opts, &Response{StatusCode: http.StatusBadGateway, Body: []byte("oops")})
	require.Error(t, err)
	_, err = p.Parse(context.Background(), "http://x/json", opts, &Response{StatusCode: http.StatusOK, Body: []byte("{not json")})
	require.Error(t, err)

	assert.NotContains(t, buf.String(), "secret-token")

	var records []map[string]interface{}
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		records = append(records, rec)
	}
	require.Len(t, records, 2)

	tests := []struct {
		msg    string
		url    string
		status float64
	}{
		{"Did not retrieve expected response code", "http://x/status", http.StatusBadGateway},
		{"Could not parse json response", "http://x/json", http.StatusOK},
	}
	for i, tt := range tests {
		rec := records[i]
		assert.Equal(t, "error", rec["level"])
		assert.Equal(t, tt.msg, rec["message"])
		assert.Equal(t, tt.url, rec["url"])

		reqOpts, ok := rec["requestOptions"].(map[string]interface{})
		require.True(t, ok, "requestOptions must be an object")
		assert.Equal(t, true, reqOpts["has_bearer"])

		response, ok := rec["response"].(map[string]interface{})
		require.True(t, ok, "response must be an object")
		assert.Equal(t, tt.status, response["status"])
	}
}
