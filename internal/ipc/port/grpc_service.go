package port

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/aelexs/kernel-ipc/internal/domain"
	"github.com/aelexs/kernel-ipc/internal/errmap"
	"github.com/aelexs/kernel-ipc/internal/ipc"
)

// KernelServiceName is the fully qualified gRPC service name.
const KernelServiceName = "ipc.v1.Kernel"

// Request and response fields of the Kernel service. Port and thread IDs
// travel as decimal strings because structpb numbers are float64; payloads
// travel as standard base64.
const (
	fieldName   = "name"
	fieldPort   = "port"
	fieldSender = "sender"
	fieldThread = "thread"
	fieldWait   = "wait"
	fieldData   = "data"
	fieldFound  = "found"
)

// threadMetadataKey names the caller's thread when the request omits it.
const threadMetadataKey = "x-thread-id"

// KernelServer is the server API of the ipc.v1.Kernel service.
type KernelServer interface {
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Close(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Resolve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Send(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Receive(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterKernelServer registers srv on s.
func RegisterKernelServer(s grpc.ServiceRegistrar, srv KernelServer) {
	s.RegisterService(&kernelServiceDesc, srv)
}

var kernelServiceDesc = grpc.ServiceDesc{
	ServiceName: KernelServiceName,
	HandlerType: (*KernelServer)(nil),
	Methods: []grpc.MethodDesc{
		kernelMethod("Create", func(s KernelServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.Create(ctx, in)
		}),
		kernelMethod("Close", func(s KernelServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.Close(ctx, in)
		}),
		kernelMethod("Resolve", func(s KernelServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.Resolve(ctx, in)
		}),
		kernelMethod("Send", func(s KernelServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.Send(ctx, in)
		}),
		kernelMethod("Receive", func(s KernelServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.Receive(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ipc/v1/kernel.proto",
}

func kernelMethod(name string, call func(KernelServer, context.Context, *structpb.Struct) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(KernelServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + KernelServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(KernelServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// GRPCHandler implements KernelServer on top of a registry.
type GRPCHandler struct {
	kernel kernel
	cfg    Config
}

var _ KernelServer = (*GRPCHandler)(nil)

// NewGRPCHandler creates a GRPCHandler backed by reg.
func NewGRPCHandler(reg *ipc.Registry, cfg Config) *GRPCHandler {
	return &GRPCHandler{kernel: reg, cfg: cfg.withDefaults()}
}

// Create creates an endpoint, named if the request carries a name.
func (h *GRPCHandler) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := tracer.Start(ctx, "grpc.create_endpoint")
	defer span.End()

	name, err := stringField(req, fieldName)
	if err != nil {
		recordError(span, err)
		return nil, errmap.ToGRPCError(err)
	}
	port, err := h.kernel.Create(name)
	if err != nil {
		recordError(span, err)
		return nil, errmap.ToGRPCError(err)
	}
	span.SetAttributes(attribute.Int64("ipc.port", int64(port)), attribute.String("ipc.name", name))

	return portResponse(port), nil
}

// Close closes an endpoint. Closing an unknown port succeeds.
func (h *GRPCHandler) Close(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	_, span := tracer.Start(ctx, "grpc.close_endpoint")
	defer span.End()

	port, err := portField(req, fieldPort)
	if err != nil {
		recordError(span, err)
		return nil, errmap.ToGRPCError(err)
	}
	span.SetAttributes(attribute.Int64("ipc.port", int64(port)))

	h.kernel.Close(port)
	return &emptypb.Empty{}, nil
}

// Resolve looks up the port bound to a name.
func (h *GRPCHandler) Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	_, span := tracer.Start(ctx, "grpc.resolve_name")
	defer span.End()

	name, err := stringField(req, fieldName)
	if err != nil {
		recordError(span, err)
		return nil, errmap.ToGRPCError(err)
	}
	span.SetAttributes(attribute.String("ipc.name", name))

	port, ok := h.kernel.Resolve(name)
	if !ok {
		err := fmt.Errorf("resolve %q: %w", name, domain.ErrEndpointNotFound)
		recordError(span, err)
		return nil, errmap.ToGRPCError(err)
	}
	return portResponse(port), nil
}

// Send delivers a message to the requested port.
func (h *GRPCHandler) Send(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	_, span := tracer.Start(ctx, "grpc.send")
	defer span.End()

	port, err := portField(req, fieldPort)
	if err != nil {
		recordError(span, err)
		return nil, errmap.ToGRPCError(err)
	}
	sender, err := uintField(req, fieldSender)
	if err != nil {
		recordError(span, err)
		return nil, errmap.ToGRPCError(err)
	}
	encoded, err := stringField(req, fieldData)
	if err != nil {
		recordError(span, err)
		return nil, errmap.ToGRPCError(err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		err = fmt.Errorf("%w: data: %w", domain.ErrInvalidInput, err)
		recordError(span, err)
		return nil, errmap.ToGRPCError(err)
	}
	if err := validatePayload(data); err != nil {
		recordError(span, err)
		return nil, errmap.ToGRPCError(err)
	}
	span.SetAttributes(
		attribute.Int64("ipc.port", int64(port)),
		attribute.Int64("ipc.sender", int64(sender)),
		attribute.Int("ipc.bytes", len(data)),
	)

	if err := h.kernel.Send(domain.PortID(sender), port, data); err != nil {
		recordError(span, err)
		return nil, errmap.ToGRPCError(err)
	}
	return &emptypb.Empty{}, nil
}

// Receive pops a message. With wait set the call parks until a message
// arrives, the endpoint closes or the receive timeout elapses; found is
// false when no message was delivered.
func (h *GRPCHandler) Receive(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := tracer.Start(ctx, "grpc.receive")
	defer span.End()

	port, err := portField(req, fieldPort)
	if err != nil {
		recordError(span, err)
		return nil, errmap.ToGRPCError(err)
	}
	thread, err := h.thread(ctx, req)
	if err != nil {
		recordError(span, err)
		return nil, errmap.ToGRPCError(err)
	}
	wait := req.GetFields()[fieldWait].GetBoolValue()
	span.SetAttributes(
		attribute.Int64("ipc.port", int64(port)),
		attribute.Int64("ipc.thread", int64(thread)),
		attribute.Bool("ipc.wait", wait),
	)

	msg, ok, err := receive(ctx, h.kernel, h.cfg.ReceiveTimeout, thread, port, wait)
	if err != nil {
		recordError(span, err)
		return nil, errmap.ToGRPCError(err)
	}
	if !ok {
		return &structpb.Struct{Fields: map[string]*structpb.Value{
			fieldFound: structpb.NewBoolValue(false),
		}}, nil
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldFound:  structpb.NewBoolValue(true),
		fieldSender: structpb.NewStringValue(msg.Sender.String()),
		fieldData:   structpb.NewStringValue(base64.StdEncoding.EncodeToString(msg.Data)),
	}}, nil
}

// thread takes the caller's thread from the request, then from metadata,
// and issues one otherwise.
func (h *GRPCHandler) thread(ctx context.Context, req *structpb.Struct) (domain.ThreadID, error) {
	if _, set := req.GetFields()[fieldThread]; set {
		n, err := uintField(req, fieldThread)
		return domain.ThreadID(n), err
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(threadMetadataKey); len(vals) > 0 {
			n, err := strconv.ParseUint(vals[0], 10, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, threadMetadataKey, vals[0])
			}
			return domain.ThreadID(n), nil
		}
	}
	return h.cfg.Threads.Next(), nil
}

func portResponse(port domain.PortID) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldPort: structpb.NewStringValue(port.String()),
	}}
}

// stringField reads an optional string field; absent means "". A field of
// any other kind is rejected rather than read as empty.
func stringField(s *structpb.Struct, key string) (string, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return "", nil
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", domain.ErrInvalidInput, key)
	}
	return str.StringValue, nil
}

func portField(s *structpb.Struct, key string) (domain.PortID, error) {
	raw, err := stringField(s, key)
	if err != nil {
		return domain.NoPort, err
	}
	port, err := domain.ParsePortID(raw)
	if err != nil {
		return domain.NoPort, fmt.Errorf("%s: %w", key, err)
	}
	return port, nil
}

// uintField reads an optional decimal string field; absent means 0.
func uintField(s *structpb.Struct, key string) (uint64, error) {
	raw, err := stringField(s, key)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, key, raw)
	}
	return n, nil
}
