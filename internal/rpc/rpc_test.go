package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nikhil/discuss/internal/logger"
)

type testParams struct {
	ChannelID int64   `json:"channel_id" validate:"required"`
	State     string  `json:"state" validate:"omitempty,oneof=open folded closed"`
	Minutes   *int    `json:"minutes"`
	Known     []int64 `json:"known_member_ids"`
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecode_BareParams(t *testing.T) {
	var p testParams
	id, err := Decode(post(`{"channel_id": 4, "state": "open", "known_member_ids": [1,2]}`), &p)
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Equal(t, int64(4), p.ChannelID)
	assert.Equal(t, []int64{1, 2}, p.Known)
	assert.Nil(t, p.Minutes)
}

func TestDecode_JSONRPCEnvelope(t *testing.T) {
	var p testParams
	id, err := Decode(post(`{"jsonrpc":"2.0","method":"call","id":17,"params":{"channel_id":5,"minutes":0}}`), &p)
	require.NoError(t, err)
	assert.Equal(t, "17", string(id))
	assert.Equal(t, int64(5), p.ChannelID)
	require.NotNil(t, p.Minutes)
	assert.Equal(t, 0, *p.Minutes)
}

func TestDecode_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		`{}`:                                 "Missing `channel_id` argument",
		`{"channel_id": 1, "state": "gone"}`: "Invalid `state` argument, expected one of: open folded closed",
		`{"channel_id": "abc"}`:              "Invalid `channel_id` argument",
		`not json`:                           "Invalid request body",
	}
	for body, message := range cases {
		var p testParams
		_, err := Decode(post(body), &p)
		var rpcErr *Error
		require.True(t, errors.As(err, &rpcErr), body)
		assert.Equal(t, http.StatusBadRequest, rpcErr.Status, body)
		assert.Equal(t, message, rpcErr.Message, body)
	}
}

func TestParseID(t *testing.T) {
	n, err := ParseID(json.RawMessage(`42`))
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	n, err = ParseID(json.RawMessage(`"43"`))
	require.NoError(t, err)
	assert.Equal(t, int64(43), n)

	for _, raw := range []string{`"abc"`, `4.5`, `null`, `[1]`, ``} {
		_, err := ParseID(json.RawMessage(raw))
		assert.Error(t, err, raw)
	}
}

func TestWriteResultAndError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteResult(w, json.RawMessage("3"), map[string]int{"id": 1})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":3,"result":{"id":1}}`, w.Body.String())

	w = httptest.NewRecorder()
	WriteResult(w, nil, nil)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"result":null}`, w.Body.String())

	w = httptest.NewRecorder()
	WriteError(w, nil, NotFound())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":"not_found","message":"Not Found"}}`, w.Body.String())

	w = httptest.NewRecorder()
	WriteError(w, nil, errors.New("db is down"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db is down")
}

func TestWriteResult_EncodingFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	SetLogger(logger.NewWithCore(core, "rpc"))
	t.Cleanup(func() { SetLogger(logger.NewNop()) })

	w := httptest.NewRecorder()
	WriteResult(w, nil, map[string]interface{}{"bad": make(chan int)})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":"internal_error","message":"Internal server error"}}`, w.Body.String())

	entries := logs.FilterMessage("Failed to encode response").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "rpc", entries[0].ContextMap()["service"])
}

func TestDecode_BodyTooLarge(t *testing.T) {
	var params testParams
	body := `{"channel_id":1,"state":"` + strings.Repeat("x", maxBodySize) + `"}`
	_, err := Decode(post(body), &params)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rpcErr.Status)
	assert.Equal(t, CodeTooLarge, rpcErr.Code)

	w := httptest.NewRecorder()
	WriteError(w, nil, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
