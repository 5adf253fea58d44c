package port_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/kernel-ipc/internal/domain"
	"github.com/aelexs/kernel-ipc/internal/domain/domaintest"
	"github.com/aelexs/kernel-ipc/internal/errmap"
	"github.com/aelexs/kernel-ipc/internal/ipc"
	"github.com/aelexs/kernel-ipc/internal/ipc/port"
	"github.com/aelexs/kernel-ipc/pkg/protocol"
)

func newMux(reg *ipc.Registry, timeout time.Duration) *http.ServeMux {
	mux := http.NewServeMux()
	port.NewHTTPHandler(reg, port.Config{Logger: discardLogger, ReceiveTimeout: timeout}).Register(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHTTP_CreateEndpoint(t *testing.T) {
	mux := newMux(newRegistry(), time.Second)

	t.Run("anonymous with empty body", func(t *testing.T) {
		rec := do(t, mux, http.MethodPost, "/v1/endpoints", "")

		require.Equal(t, http.StatusCreated, rec.Code)
		resp := decodeBody[protocol.CreateEndpointResponse](t, rec)
		assert.EqualValues(t, 1, resp.Port)
		assert.Empty(t, resp.Name)
		assert.Equal(t, "/v1/endpoints/1", rec.Header().Get("Location"))
	})

	t.Run("anonymous with empty chunked body", func(t *testing.T) {
		mux := newMux(newRegistry(), time.Second)
		req := httptest.NewRequest(http.MethodPost, "/v1/endpoints", io.NopCloser(strings.NewReader("")))
		require.EqualValues(t, -1, req.ContentLength)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		resp := decodeBody[protocol.CreateEndpointResponse](t, rec)
		assert.EqualValues(t, 1, resp.Port)
		assert.Empty(t, resp.Name)
	})

	t.Run("named", func(t *testing.T) {
		rec := do(t, mux, http.MethodPost, "/v1/endpoints", `{"name":"svc"}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		resp := decodeBody[protocol.CreateEndpointResponse](t, rec)
		assert.EqualValues(t, 2, resp.Port)
		assert.Equal(t, "svc", resp.Name)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		rec := do(t, mux, http.MethodPost, "/v1/endpoints", `{"name":"svc"}`)

		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "NAME_ALREADY_BOUND", decodeBody[errmap.HTTPError](t, rec).Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := do(t, mux, http.MethodPost, "/v1/endpoints", `{"name":`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_ARGUMENT", decodeBody[errmap.HTTPError](t, rec).Code)
	})

	t.Run("invalid name", func(t *testing.T) {
		rec := do(t, mux, http.MethodPost, "/v1/endpoints", `{"name":"`+strings.Repeat("n", domain.MaxNameLength+1)+`"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHTTP_ResolveName(t *testing.T) {
	reg := newRegistry()
	mux := newMux(reg, time.Second)
	p, err := reg.Create("svc/console")
	require.NoError(t, err)

	rec := do(t, mux, http.MethodGet, "/v1/names/svc/console", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[protocol.ResolveResponse](t, rec)
	assert.Equal(t, p.Uint64(), resp.Port)
	assert.Equal(t, "svc/console", resp.Name)

	rec = do(t, mux, http.MethodGet, "/v1/names/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ENDPOINT_NOT_FOUND", decodeBody[errmap.HTTPError](t, rec).Code)
}

func TestHTTP_SendAndReceive(t *testing.T) {
	reg := newRegistry()
	mux := newMux(reg, time.Second)
	p, err := reg.Create("")
	require.NoError(t, err)

	rec := do(t, mux, http.MethodPost, "/v1/endpoints/1/messages", `{"sender":9,"data":"aGVsbG8="}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, mux, http.MethodGet, "/v1/endpoints/1/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	msg := decodeBody[protocol.Message](t, rec)
	assert.EqualValues(t, 9, msg.Sender)
	assert.Equal(t, []byte("hello"), msg.Data)

	rec = do(t, mux, http.MethodGet, "/v1/endpoints/1/messages", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, ok := reg.Receive(p)
	assert.False(t, ok)
}

func TestHTTP_SendErrors(t *testing.T) {
	reg := newRegistry()
	mux := newMux(reg, time.Second)
	_, err := reg.Create("")
	require.NoError(t, err)

	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unknown port", "/v1/endpoints/42/messages", `{"sender":1,"data":"aGk="}`, http.StatusNotFound, "ENDPOINT_NOT_FOUND"},
		{"reserved port", "/v1/endpoints/0/messages", `{"sender":1,"data":"aGk="}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"non-numeric port", "/v1/endpoints/abc/messages", `{"sender":1,"data":"aGk="}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"bad base64", "/v1/endpoints/1/messages", `{"sender":1,"data":"***"}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"unknown field", "/v1/endpoints/1/messages", `{"sender":1,"data":"aGk=","priority":1}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodPost, tt.target, tt.body)

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeBody[errmap.HTTPError](t, rec).Code)
		})
	}
}

func TestHTTP_ReceiveUnknownPort(t *testing.T) {
	mux := newMux(newRegistry(), time.Second)

	rec := do(t, mux, http.MethodGet, "/v1/endpoints/5/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, mux, http.MethodGet, "/v1/endpoints/5/messages?wait=1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_ReceiveRejectsBadThread(t *testing.T) {
	reg := newRegistry()
	mux := newMux(reg, time.Second)
	_, err := reg.Create("")
	require.NoError(t, err)

	rec := do(t, mux, http.MethodGet, "/v1/endpoints/1/messages?wait=1&thread=-3", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_BlockingReceiveWokenBySend(t *testing.T) {
	reg := newRegistry()
	mux := newMux(reg, 5*time.Second)
	p, err := reg.Create("x")
	require.NoError(t, err)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- do(t, mux, http.MethodGet, "/v1/endpoints/1/messages?wait=1&thread=7", "")
	}()

	waitForWaiters(t, reg, p, []domain.ThreadID{7})
	require.NoError(t, reg.Send(domain.NoPort, p, []byte("ping")))

	rec := <-done
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("ping"), decodeBody[protocol.Message](t, rec).Data)
}

func TestHTTP_BlockingReceiveTimesOut(t *testing.T) {
	reg := newRegistry()
	mux := newMux(reg, 20*time.Millisecond)
	p, err := reg.Create("")
	require.NoError(t, err)

	rec := do(t, mux, http.MethodGet, "/v1/endpoints/1/messages?wait=1", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	info, ok := reg.Stat(p)
	require.True(t, ok)
	assert.Empty(t, info.Waiting)
}

func TestHTTP_BlockingReceiveEndpointClosed(t *testing.T) {
	reg := newRegistry()
	mux := newMux(reg, 5*time.Second)
	p, err := reg.Create("")
	require.NoError(t, err)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- do(t, mux, http.MethodGet, "/v1/endpoints/1/messages?wait=true&thread=3", "")
	}()

	waitForWaiters(t, reg, p, []domain.ThreadID{3})
	rec := do(t, mux, http.MethodDelete, "/v1/endpoints/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = <-done
	require.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "ENDPOINT_CLOSED", decodeBody[errmap.HTTPError](t, rec).Code)
}

func TestHTTP_StatListAndClose(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := newRegistry(ipc.WithClock(domaintest.NewFakeClock(created)))
	mux := newMux(reg, time.Second)

	a, err := reg.Create("alpha")
	require.NoError(t, err)
	b, err := reg.Create("")
	require.NoError(t, err)
	require.NoError(t, reg.Send(b, a, []byte("1")))
	require.NoError(t, reg.Send(b, a, []byte("2")))

	rec := do(t, mux, http.MethodGet, "/v1/endpoints/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody[protocol.EndpointInfo](t, rec)
	assert.Equal(t, protocol.EndpointInfo{
		Port:      a.Uint64(),
		Name:      "alpha",
		Pending:   2,
		Waiting:   []uint64{},
		CreatedAt: created.UnixMilli(),
	}, info)

	rec = do(t, mux, http.MethodGet, "/v1/endpoints", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[protocol.ListEndpointsResponse](t, rec)
	require.Len(t, list.Endpoints, 2)
	assert.Equal(t, a.Uint64(), list.Endpoints[0].Port)
	assert.Equal(t, b.Uint64(), list.Endpoints[1].Port)
	assert.False(t, list.Truncated)

	rec = do(t, mux, http.MethodDelete, "/v1/endpoints/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, mux, http.MethodDelete, "/v1/endpoints/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code, "close is idempotent")

	rec = do(t, mux, http.MethodGet, "/v1/endpoints/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, mux, http.MethodGet, "/v1/names/alpha", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
