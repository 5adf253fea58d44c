package port

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/aelexs/kernel-ipc/internal/domain"
	"github.com/aelexs/kernel-ipc/internal/errmap"
	"github.com/aelexs/kernel-ipc/internal/ipc"
)

// Client calls a remote ipc.v1.Kernel service. Errors carry the domain
// sentinel matching the status code, so errors.Is works across the wire.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a Client on an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Create creates an endpoint; an empty name makes it anonymous.
func (c *Client) Create(ctx context.Context, name string) (domain.PortID, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Create", fields(fieldName, name), out); err != nil {
		return domain.NoPort, fmt.Errorf("create endpoint %q: %w", name, err)
	}
	return portField(out, fieldPort)
}

// Close closes port.
func (c *Client) Close(ctx context.Context, port domain.PortID) error {
	if err := c.invoke(ctx, "Close", fields(fieldPort, port.String()), new(emptypb.Empty)); err != nil {
		return fmt.Errorf("close port %d: %w", port, err)
	}
	return nil
}

// Resolve returns the port bound to name; false when it is unbound.
func (c *Client) Resolve(ctx context.Context, name string) (domain.PortID, bool, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Resolve", fields(fieldName, name), out); err != nil {
		if domain.IsNotFound(err) {
			return domain.NoPort, false, nil
		}
		return domain.NoPort, false, fmt.Errorf("resolve %q: %w", name, err)
	}
	port, err := portField(out, fieldPort)
	return port, err == nil, err
}

// Send delivers payload from sender to recipient.
func (c *Client) Send(ctx context.Context, sender, recipient domain.PortID, payload []byte) error {
	in := fields(
		fieldPort, recipient.String(),
		fieldSender, sender.String(),
		fieldData, base64.StdEncoding.EncodeToString(payload),
	)
	if err := c.invoke(ctx, "Send", in, new(emptypb.Empty)); err != nil {
		return fmt.Errorf("send to port %d: %w", recipient, err)
	}
	return nil
}

// Receive pops a message for port as thread. With wait the server parks the
// call up to its receive timeout; false means nothing was delivered.
func (c *Client) Receive(ctx context.Context, thread domain.ThreadID, port domain.PortID, wait bool) (ipc.Message, bool, error) {
	in := fields(fieldPort, port.String(), fieldThread, thread.String())
	in.Fields[fieldWait] = structpb.NewBoolValue(wait)

	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Receive", in, out); err != nil {
		return ipc.Message{}, false, fmt.Errorf("receive on port %d: %w", port, err)
	}
	if !out.GetFields()[fieldFound].GetBoolValue() {
		return ipc.Message{}, false, nil
	}

	rawSender, err := stringField(out, fieldSender)
	if err != nil {
		return ipc.Message{}, false, fmt.Errorf("receive on port %d: %w", port, err)
	}
	sender, err := strconv.ParseUint(rawSender, 10, 64)
	if err != nil {
		return ipc.Message{}, false, fmt.Errorf("receive on port %d: sender: %w", port, err)
	}
	encoded, err := stringField(out, fieldData)
	if err != nil {
		return ipc.Message{}, false, fmt.Errorf("receive on port %d: %w", port, err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ipc.Message{}, false, fmt.Errorf("receive on port %d: data: %w", port, err)
	}
	return ipc.Message{Sender: domain.PortID(sender), Data: data}, true, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	if err := c.cc.Invoke(ctx, "/"+KernelServiceName+"/"+method, in, out); err != nil {
		return errmap.ToDomainError(err)
	}
	return nil
}

// fields builds a struct of string values from key/value pairs.
func fields(kv ...string) *structpb.Struct {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		s.Fields[kv[i]] = structpb.NewStringValue(kv[i+1])
	}
	return s
}
