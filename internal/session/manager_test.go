// ABOUTME: Tests for the session registry and per-session pipeline.
// ABOUTME: Uses the stub client factory to script auth flows and callbacks.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapgate/zapgate/internal/event"
	"github.com/zapgate/zapgate/internal/waclient"
)

// collectSink records every event it consumes.
type collectSink struct {
	mu     sync.Mutex
	events []*event.Event
}

func (c *collectSink) Consume(_ context.Context, ev *event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collectSink) all() []*event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*event.Event, len(c.events))
	copy(out, c.events)
	return out
}

func newTestManager(t *testing.T) (*Manager, *waclient.StubFactory, *collectSink) {
	t.Helper()
	factory := waclient.NewStubFactory()
	sink := &collectSink{}
	m := NewManager(factory.New, true, sink, slog.Default())
	t.Cleanup(m.CloseAll)
	return m, factory, sink
}

func TestCreate_Idempotent(t *testing.T) {
	m, _, _ := newTestManager(t)

	first, err := m.Create("s1")
	require.NoError(t, err)

	second, err := m.Create("s1")
	require.NoError(t, err)

	assert.Same(t, first, second, "creating an existing session must return the existing handle")
	assert.Equal(t, 1, m.Count())
}

func TestCreate_FactoryFailure(t *testing.T) {
	m, factory, _ := newTestManager(t)

	factory.FailNext(errors.New("browser did not start"))
	_, err := m.Create("s1")
	require.ErrorIs(t, err, ErrClientInit)
	assert.Zero(t, m.Count(), "a failed create must not register the session")

	// The factory error was consumed; the next attempt succeeds.
	_, err = m.Create("s1")
	require.NoError(t, err)
}

func TestRemove(t *testing.T) {
	m, factory, _ := newTestManager(t)

	_, err := m.Create("s1")
	require.NoError(t, err)

	require.NoError(t, m.Remove("s1"))
	assert.Zero(t, m.Count())
	assert.True(t, factory.Client("s1").Closed(), "remove must close the client")

	err = m.Remove("s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// slowCloseClient blocks inside Close until released, so tests can hold a
// session in the closing state.
type slowCloseClient struct {
	waclient.Client
	closeStarted chan struct{}
	release      chan struct{}
	once         sync.Once
}

func (c *slowCloseClient) Close() error {
	c.once.Do(func() { close(c.closeStarted) })
	<-c.release
	return c.Client.Close()
}

func TestRemove_NoSecondClientWhileClosing(t *testing.T) {
	inner := waclient.NewStubFactory()
	slow := &slowCloseClient{
		closeStarted: make(chan struct{}),
		release:      make(chan struct{}),
	}
	first := true
	factory := func(cfg waclient.Config, h waclient.Handlers) (waclient.Client, error) {
		cli, err := inner.New(cfg, h)
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			slow.Client = cli
			return slow, nil
		}
		return cli, nil
	}
	m := NewManager(factory, true, &collectSink{}, slog.Default())
	t.Cleanup(m.CloseAll)

	_, err := m.Create("s1")
	require.NoError(t, err)

	removeDone := make(chan error, 1)
	go func() { removeDone <- m.Remove("s1") }()
	<-slow.closeStarted

	// While the old client is still closing, re-creating the name must not
	// yield a second live client.
	createDone := make(chan error, 1)
	go func() {
		_, err := m.Create("s1")
		createDone <- err
	}()

	select {
	case <-createDone:
		t.Fatal("create completed while the previous client was still closing")
	case <-time.After(100 * time.Millisecond):
	}

	close(slow.release)
	require.NoError(t, <-removeDone)
	require.NoError(t, <-createDone)
	assert.Equal(t, 1, m.Count())
}

func TestRemove_Unknown(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.ErrorIs(t, m.Remove("ghost"), ErrSessionNotFound)
}

func TestReconnect_ReplacesClient(t *testing.T) {
	m, factory, _ := newTestManager(t)

	_, err := m.Create("s1")
	require.NoError(t, err)
	old := factory.Client("s1")
	old.SetState(waclient.StateConnected)

	require.NoError(t, m.Reconnect("s1"))
	assert.True(t, old.Closed(), "reconnect must close the previous client")

	fresh := factory.Client("s1")
	require.NotNil(t, fresh)
	assert.NotSame(t, old, fresh)

	lc, err := m.Lifecycle("s1")
	require.NoError(t, err)
	assert.Equal(t, LifecycleUninitialized, lc, "a reconnected session starts over")
}

func TestReconnect_Unknown(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.ErrorIs(t, m.Reconnect("ghost"), ErrSessionNotFound)
}

func TestList_Sorted(t *testing.T) {
	m, _, _ := newTestManager(t)

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		_, err := m.Create(name)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, m.List())
}

func TestStatus(t *testing.T) {
	m, factory, _ := newTestManager(t)

	_, err := m.Create("s1")
	require.NoError(t, err)

	assert.Equal(t, `session "ghost" not found`, m.Status("ghost"))

	factory.Client("s1").SetState(waclient.StateConnected)
	assert.Equal(t, "CONNECTED (connected to the network)", m.Status("s1"))

	factory.Client("s1").SetState(waclient.StateTimeout)
	assert.Equal(t, "TIMEOUT (connection timed out)", m.Status("s1"))
}

func TestQRImage_RoundTrip(t *testing.T) {
	m, factory, _ := newTestManager(t)

	_, err := m.Create("s1")
	require.NoError(t, err)

	// 1x1 transparent PNG.
	dataURI := "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="
	factory.Client("s1").EmitQR(dataURI, "<ascii>")

	img, err := m.QRImage("s1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, img[:4], "decoded bytes must be the raw PNG")

	lc, err := m.Lifecycle("s1")
	require.NoError(t, err)
	assert.Equal(t, LifecycleQRPending, lc)
}

func TestQRImage_Missing(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Create("s1")
	require.NoError(t, err)

	_, err = m.QRImage("s1")
	assert.ErrorIs(t, err, ErrQRNotFound)

	_, err = m.QRImage("ghost")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestQRImage_MalformedDiscarded(t *testing.T) {
	m, factory, _ := newTestManager(t)

	_, err := m.Create("s1")
	require.NoError(t, err)

	factory.Client("s1").EmitQR("not-a-data-uri", "")
	_, err = m.QRImage("s1")
	assert.ErrorIs(t, err, ErrQRNotFound, "malformed QR payloads must be discarded")

	factory.Client("s1").EmitQR("data:image/png;base64,!!!not-base64!!!", "")
	_, err = m.QRImage("s1")
	assert.ErrorIs(t, err, ErrQRNotFound)
}

func TestQRCleared_OnConnect(t *testing.T) {
	m, factory, _ := newTestManager(t)

	_, err := m.Create("s1")
	require.NoError(t, err)

	factory.Client("s1").EmitQR("data:image/png;base64,aGVsbG8=", "")
	_, err = m.QRImage("s1")
	require.NoError(t, err)

	factory.Client("s1").SetState(waclient.StateConnected)
	_, err = m.QRImage("s1")
	assert.ErrorIs(t, err, ErrQRNotFound, "authentication must clear the pending QR")
}

func TestSendText(t *testing.T) {
	m, factory, _ := newTestManager(t)

	_, err := m.Create("s1")
	require.NoError(t, err)
	ctx := context.Background()

	// Not yet connected.
	err = m.SendText(ctx, "s1", "5511999999999", "oi")
	assert.ErrorIs(t, err, ErrDelivery)

	factory.Client("s1").SetState(waclient.StateConnected)
	require.NoError(t, m.SendText(ctx, "s1", "5511999999999", "oi"))

	texts := factory.Client("s1").Texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "5511999999999", texts[0].To)
	assert.Equal(t, "oi", texts[0].Body)

	err = m.SendText(ctx, "ghost", "x", "y")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSendText_ClientFailure(t *testing.T) {
	m, factory, _ := newTestManager(t)

	_, err := m.Create("s1")
	require.NoError(t, err)
	factory.Client("s1").SetState(waclient.StateConnected)
	factory.Client("s1").SetSendError(errors.New("peer unreachable"))

	err = m.SendText(context.Background(), "s1", "x", "y")
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestSendContactCardAndLocation(t *testing.T) {
	m, factory, _ := newTestManager(t)

	_, err := m.Create("s1")
	require.NoError(t, err)
	factory.Client("s1").SetState(waclient.StateConnected)
	ctx := context.Background()

	require.NoError(t, m.SendContactCard(ctx, "s1", "dest", "5511888888888", "Maria"))
	vcards := factory.Client("s1").Vcards()
	require.Len(t, vcards, 1)
	assert.Equal(t, "Maria", vcards[0].Name)

	require.NoError(t, m.SendLocation(ctx, "s1", "dest", -23.55, -46.63, "Office"))
	locs := factory.Client("s1").Locations()
	require.Len(t, locs, 1)
	assert.Equal(t, -23.55, locs[0].Lat)
	assert.Equal(t, "Office", locs[0].Title)
}

func TestPipeline_OrderPreserved(t *testing.T) {
	m, factory, sink := newTestManager(t)

	_, err := m.Create("s1")
	require.NoError(t, err)
	stub := factory.Client("s1")

	for i := 0; i < 10; i++ {
		stub.EmitMessage(waclient.RawMessage{
			ID:   fmt.Sprintf("m%d", i),
			Type: "chat",
			Body: fmt.Sprintf("msg %d", i),
		})
	}

	require.Eventually(t, func() bool {
		return len(sink.all()) == 10
	}, time.Second, 10*time.Millisecond)

	for i, ev := range sink.all() {
		assert.Equal(t, event.TypeMessage, ev.Type)
		assert.Equal(t, "s1", ev.Session)
		payload, ok := ev.Payload.(event.TextMessage)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("m%d", i), payload.ID, "pipeline must preserve emission order")
	}
}

func TestPipeline_AllEventKinds(t *testing.T) {
	m, factory, sink := newTestManager(t)

	_, err := m.Create("s1")
	require.NoError(t, err)
	stub := factory.Client("s1")

	stub.EmitMessage(waclient.RawMessage{ID: "m1", Type: "chat", Body: "hi"})
	stub.EmitAck(waclient.Ack{ID: "m1", Code: 2})
	stub.SetState(waclient.StateDisconnected)
	stub.EmitCall(waclient.IncomingCall{ID: "c1", Peer: "p1"})

	require.Eventually(t, func() bool {
		return len(sink.all()) == 4
	}, time.Second, 10*time.Millisecond)

	got := sink.all()
	assert.Equal(t, event.TypeMessage, got[0].Type)
	assert.Equal(t, event.TypeAck, got[1].Type)
	assert.Equal(t, event.TypeState, got[2].Type)
	assert.Equal(t, event.TypeCall, got[3].Type)
}

func TestRemove_DrainsInFlightEvents(t *testing.T) {
	m, factory, sink := newTestManager(t)

	_, err := m.Create("s1")
	require.NoError(t, err)
	stub := factory.Client("s1")

	for i := 0; i < 5; i++ {
		stub.EmitMessage(waclient.RawMessage{ID: fmt.Sprintf("m%d", i), Type: "chat"})
	}
	require.NoError(t, m.Remove("s1"))

	// Remove blocks on the pipeline drain, so everything accepted before the
	// close is already in the sink.
	assert.Len(t, sink.all(), 5)
}

func TestLifecycle_TracksStateChanges(t *testing.T) {
	m, factory, _ := newTestManager(t)

	_, err := m.Create("s1")
	require.NoError(t, err)
	stub := factory.Client("s1")

	lc, _ := m.Lifecycle("s1")
	assert.Equal(t, LifecycleUninitialized, lc)

	stub.SetState(waclient.StateConnected)
	lc, _ = m.Lifecycle("s1")
	assert.Equal(t, LifecycleConnected, lc)

	stub.SetState(waclient.StateDisconnected)
	lc, _ = m.Lifecycle("s1")
	assert.Equal(t, LifecycleDisconnected, lc)
}

func TestAutoAuth(t *testing.T) {
	factory := waclient.NewStubFactory()
	factory.AutoAuth = true
	sink := &collectSink{}
	m := NewManager(factory.New, true, sink, slog.Default())
	t.Cleanup(m.CloseAll)

	_, err := m.Create("s1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		lc, err := m.Lifecycle("s1")
		return err == nil && lc == LifecycleConnected
	}, time.Second, 10*time.Millisecond)
}

func TestCloseAll(t *testing.T) {
	m, factory, _ := newTestManager(t)

	for _, name := range []string{"a", "b"} {
		_, err := m.Create(name)
		require.NoError(t, err)
	}

	m.CloseAll()
	assert.Zero(t, m.Count())
	assert.True(t, factory.Client("a").Closed())
	assert.True(t, factory.Client("b").Closed())
}
