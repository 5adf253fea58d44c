package port

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/kernel-ipc/internal/domain"
	"github.com/aelexs/kernel-ipc/internal/errmap"
	"github.com/aelexs/kernel-ipc/internal/ipc"
	"github.com/aelexs/kernel-ipc/internal/observability"
	"github.com/aelexs/kernel-ipc/pkg/protocol"
)

// maxSendBody bounds a send request: base64 inflates the payload by 4/3.
const maxSendBody = domain.MaxPayloadBytes/3*4 + 4096

// HTTPHandler serves the admin API over HTTP.
type HTTPHandler struct {
	kernel kernel
	cfg    Config
}

// NewHTTPHandler creates an HTTPHandler backed by reg.
func NewHTTPHandler(reg *ipc.Registry, cfg Config) *HTTPHandler {
	return &HTTPHandler{kernel: reg, cfg: cfg.withDefaults()}
}

// Register mounts the admin routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/endpoints", h.create)
	mux.HandleFunc("GET /v1/endpoints", h.list)
	mux.HandleFunc("GET /v1/endpoints/{port}", h.stat)
	mux.HandleFunc("DELETE /v1/endpoints/{port}", h.close)
	mux.HandleFunc("POST /v1/endpoints/{port}/messages", h.send)
	mux.HandleFunc("GET /v1/endpoints/{port}/messages", h.receive)
	mux.HandleFunc("GET /v1/names/{name...}", h.resolve)
}

func (h *HTTPHandler) create(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.create_endpoint")
	defer span.End()

	// An empty body, chunked or not, creates an anonymous endpoint.
	var req protocol.CreateEndpointRequest
	if err := protocol.Decode(http.MaxBytesReader(w, r.Body, 4096), &req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, r.WithContext(ctx), span, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
		return
	}

	port, err := h.kernel.Create(req.Name)
	if err != nil {
		h.fail(w, r.WithContext(ctx), span, err)
		return
	}
	span.SetAttributes(attribute.Int64("ipc.port", int64(port)), attribute.String("ipc.name", req.Name))

	w.Header().Set("Location", "/v1/endpoints/"+port.String())
	writeJSON(w, http.StatusCreated, protocol.CreateEndpointResponse{Port: port.Uint64(), Name: req.Name})
}

func (h *HTTPHandler) list(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "http.list_endpoints")
	defer span.End()

	infos := h.kernel.List()
	resp := protocol.ListEndpointsResponse{Endpoints: make([]protocol.EndpointInfo, 0, min(len(infos), domain.MaxListEndpoints))}
	for i, info := range infos {
		if i == domain.MaxListEndpoints {
			resp.Truncated = true
			break
		}
		resp.Endpoints = append(resp.Endpoints, toWireInfo(info))
	}
	span.SetAttributes(attribute.Int("ipc.endpoints", len(infos)))

	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) stat(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.stat_endpoint")
	defer span.End()

	port, err := domain.ParsePortID(r.PathValue("port"))
	if err != nil {
		h.fail(w, r.WithContext(ctx), span, err)
		return
	}
	span.SetAttributes(attribute.Int64("ipc.port", int64(port)))

	info, ok := h.kernel.Stat(port)
	if !ok {
		h.fail(w, r.WithContext(ctx), span, fmt.Errorf("stat port %d: %w", port, domain.ErrEndpointNotFound))
		return
	}
	writeJSON(w, http.StatusOK, toWireInfo(info))
}

func (h *HTTPHandler) close(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.close_endpoint")
	defer span.End()

	port, err := domain.ParsePortID(r.PathValue("port"))
	if err != nil {
		h.fail(w, r.WithContext(ctx), span, err)
		return
	}
	span.SetAttributes(attribute.Int64("ipc.port", int64(port)))

	h.kernel.Close(port)
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) resolve(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.resolve_name")
	defer span.End()

	name := r.PathValue("name")
	span.SetAttributes(attribute.String("ipc.name", name))

	port, ok := h.kernel.Resolve(name)
	if !ok {
		h.fail(w, r.WithContext(ctx), span, fmt.Errorf("resolve %q: %w", name, domain.ErrEndpointNotFound))
		return
	}
	writeJSON(w, http.StatusOK, protocol.ResolveResponse{Name: name, Port: port.Uint64()})
}

func (h *HTTPHandler) send(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.send")
	defer span.End()

	port, err := domain.ParsePortID(r.PathValue("port"))
	if err != nil {
		h.fail(w, r.WithContext(ctx), span, err)
		return
	}
	span.SetAttributes(attribute.Int64("ipc.port", int64(port)))

	var req protocol.SendRequest
	if err := protocol.Decode(http.MaxBytesReader(w, r.Body, maxSendBody), &req); err != nil {
		h.fail(w, r.WithContext(ctx), span, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
		return
	}
	if err := validatePayload(req.Data); err != nil {
		h.fail(w, r.WithContext(ctx), span, err)
		return
	}
	span.SetAttributes(attribute.Int64("ipc.sender", int64(req.Sender)), attribute.Int("ipc.bytes", len(req.Data)))

	if err := h.kernel.Send(domain.PortID(req.Sender), port, req.Data); err != nil {
		h.fail(w, r.WithContext(ctx), span, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// receive returns 200 with a message, or 204 when none is available. With
// wait=1 the request parks until a message arrives, the endpoint closes
// (410) or the receive timeout elapses (204).
func (h *HTTPHandler) receive(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.receive")
	defer span.End()

	port, err := domain.ParsePortID(r.PathValue("port"))
	if err != nil {
		h.fail(w, r.WithContext(ctx), span, err)
		return
	}

	q := r.URL.Query()
	wait := q.Get("wait") == "1" || q.Get("wait") == "true"
	thread, err := h.thread(q.Get("thread"))
	if err != nil {
		h.fail(w, r.WithContext(ctx), span, err)
		return
	}
	span.SetAttributes(
		attribute.Int64("ipc.port", int64(port)),
		attribute.Int64("ipc.thread", int64(thread)),
		attribute.Bool("ipc.wait", wait),
	)

	msg, ok, err := receive(ctx, h.kernel, h.cfg.ReceiveTimeout, thread, port, wait)
	if err != nil {
		h.fail(w, r.WithContext(ctx), span, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, protocol.Message{Sender: msg.Sender.Uint64(), Data: msg.Data})
}

// thread parses a caller-supplied thread ID, issuing one when raw is empty.
func (h *HTTPHandler) thread(raw string) (domain.ThreadID, error) {
	if raw == "" {
		return h.cfg.Threads.Next(), nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: thread %q", domain.ErrInvalidInput, raw)
	}
	return domain.ThreadID(n), nil
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, span trace.Span, err error) {
	recordError(span, err)
	status := errmap.ToHTTPStatusCode(err)
	logger := observability.WithTraceID(r.Context(), h.cfg.Logger)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "admin request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	} else {
		logger.DebugContext(r.Context(), "admin request rejected",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	errmap.WriteHTTPError(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", protocol.ContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toWireInfo(info ipc.EndpointInfo) protocol.EndpointInfo {
	waiting := make([]uint64, len(info.Waiting))
	for i, t := range info.Waiting {
		waiting[i] = t.Uint64()
	}
	return protocol.EndpointInfo{
		Port:      info.Port.Uint64(),
		Name:      info.Name,
		Pending:   info.Pending,
		Waiting:   waiting,
		CreatedAt: domain.UnixMillis(info.CreatedAt),
	}
}
