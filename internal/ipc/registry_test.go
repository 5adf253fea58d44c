package ipc_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/kernel-ipc/internal/domain"
	"github.com/aelexs/kernel-ipc/internal/domain/domaintest"
	"github.com/aelexs/kernel-ipc/internal/ipc"
)

func TestCreate_IdentifiersStrictlyIncrease(t *testing.T) {
	reg := ipc.NewRegistry()

	var prev domain.PortID
	for i := 0; i < 50; i++ {
		name := ""
		if i%3 == 0 {
			name = "svc-" + strings.Repeat("x", i)
		}
		port, err := reg.Create(name)
		require.NoError(t, err)
		require.Greater(t, port, prev)
		prev = port
	}
}

func TestCreate_NamedEndpointResolves(t *testing.T) {
	reg := ipc.NewRegistry()

	p2, err := reg.Create("svc")
	require.NoError(t, err)

	got, ok := reg.Resolve("svc")
	require.True(t, ok)
	assert.Equal(t, p2, got)

	reg.Close(p2)

	_, ok = reg.Resolve("svc")
	assert.False(t, ok)
}

func TestCreate_DuplicateNameFails(t *testing.T) {
	reg := ipc.NewRegistry()

	first, err := reg.Create("dup")
	require.NoError(t, err)

	_, err = reg.Create("dup")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNameAlreadyBound)

	got, ok := reg.Resolve("dup")
	require.True(t, ok, "first binding must survive")
	assert.Equal(t, first, got)

	require.NoError(t, reg.Send(domain.NoPort, first, []byte("still alive")))
	msg, ok := reg.Receive(first)
	require.True(t, ok)
	assert.Equal(t, []byte("still alive"), msg.Data)
	assert.Equal(t, 1, reg.Len())
}

func TestCreate_NameReusableAfterClose(t *testing.T) {
	reg := ipc.NewRegistry()

	old, err := reg.Create("svc")
	require.NoError(t, err)
	reg.Close(old)

	fresh, err := reg.Create("svc")
	require.NoError(t, err)
	assert.Greater(t, fresh, old, "identifiers are never reissued")

	got, ok := reg.Resolve("svc")
	require.True(t, ok)
	assert.Equal(t, fresh, got)
}

func TestCreate_NamesAreCaseSensitive(t *testing.T) {
	reg := ipc.NewRegistry()

	lower, err := reg.Create("svc")
	require.NoError(t, err)
	upper, err := reg.Create("SVC")
	require.NoError(t, err)

	assert.NotEqual(t, lower, upper)
}

func TestCreate_InvalidName(t *testing.T) {
	reg := ipc.NewRegistry()

	_, err := reg.Create("bad\xff")

	assert.ErrorIs(t, err, domain.ErrInvalidName)
	assert.Zero(t, reg.Len())
}

func TestResolve_UnboundName(t *testing.T) {
	reg := ipc.NewRegistry()

	_, err := reg.Create("")
	require.NoError(t, err)

	_, ok := reg.Resolve("")
	assert.False(t, ok, "anonymous endpoints have no binding")
	_, ok = reg.Resolve("missing")
	assert.False(t, ok)
}

func TestClose_Idempotent(t *testing.T) {
	reg := ipc.NewRegistry()

	port, err := reg.Create("svc")
	require.NoError(t, err)

	reg.Close(port)
	reg.Close(port)
	reg.Close(domain.PortID(999))

	assert.Zero(t, reg.Len())
}

func TestClose_DiscardsPendingMessages(t *testing.T) {
	reg := ipc.NewRegistry()

	port, err := reg.Create("")
	require.NoError(t, err)
	require.NoError(t, reg.Send(domain.NoPort, port, []byte("a")))
	require.NoError(t, reg.Send(domain.NoPort, port, []byte("b")))

	reg.Close(port)

	_, ok := reg.Receive(port)
	assert.False(t, ok)
	_, ok = reg.Stat(port)
	assert.False(t, ok)
}

func TestCloseAll(t *testing.T) {
	reg := ipc.NewRegistry()

	for _, name := range []string{"a", "b", ""} {
		_, err := reg.Create(name)
		require.NoError(t, err)
	}

	reg.CloseAll()

	assert.Zero(t, reg.Len())
	_, ok := reg.Resolve("a")
	assert.False(t, ok)
	assert.Empty(t, reg.List())
}

func TestStat(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := domaintest.NewFakeClock(created)
	reg := ipc.NewRegistry(ipc.WithClock(clock))

	port, err := reg.Create("svc")
	require.NoError(t, err)
	require.NoError(t, reg.Send(domain.NoPort, port, []byte("x")))

	info, ok := reg.Stat(port)
	require.True(t, ok)
	assert.Equal(t, port, info.Port)
	assert.Equal(t, "svc", info.Name)
	assert.Equal(t, 1, info.Pending)
	assert.Empty(t, info.Waiting)
	assert.True(t, info.CreatedAt.Equal(created))
}

func TestList_OrderedByPort(t *testing.T) {
	clock := domaintest.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	reg := ipc.NewRegistry(ipc.WithClock(clock))

	var ports []domain.PortID
	for _, name := range []string{"c", "", "a"} {
		port, err := reg.Create(name)
		require.NoError(t, err)
		ports = append(ports, port)
		clock.Advance(time.Second)
	}
	reg.Close(ports[1])

	infos := reg.List()

	require.Len(t, infos, 2)
	assert.Equal(t, ports[0], infos[0].Port)
	assert.Equal(t, "c", infos[0].Name)
	assert.Equal(t, ports[2], infos[1].Port)
	assert.True(t, infos[1].CreatedAt.After(infos[0].CreatedAt))
}
