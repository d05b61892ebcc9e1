package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketchat/internal/domain/call"
	"marketchat/internal/domain/message"
	"marketchat/internal/domain/persona"
	"marketchat/internal/events"
	"marketchat/internal/identity"
	"marketchat/internal/repository"
	"marketchat/internal/repository/memory"
	"marketchat/internal/services"
	"marketchat/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roomWorld struct {
	store   *repository.Store
	bus     *events.LocalBus
	msgs    *services.MessageService
	calls   *services.CallService
	student persona.Persona
	shop    persona.Persona
	roomID  uuid.UUID
}

func newRoomWorld(t *testing.T) *roomWorld {
	t.Helper()
	mem := memory.New()
	student := persona.Profile{ID: uuid.New(), AuthUID: "student-uid", DisplayName: "Ada"}
	vendor := persona.Profile{ID: uuid.New(), AuthUID: "vendor-uid", DisplayName: "Grace"}
	shop := persona.Shop{ID: uuid.New(), OwnerUID: "vendor-uid", OwnerProfileID: vendor.ID, Name: "Campus Books"}
	mem.AddProfile(student)
	mem.AddProfile(vendor)
	mem.AddShop(shop)

	store := mem.Repositories()
	bus := events.NewLocalBus()
	l := logger.Nop()
	linker := services.NewMembershipLinker(store.Memberships, 1, 0, l)
	rooms := services.NewRoomService(store.Personas, store.Rooms, linker, services.NewEventPublisher(bus, l), l)
	roomID, err := rooms.EnsureRoom(context.Background(), student.ID, shop.ID)
	require.NoError(t, err)

	return &roomWorld{
		store:   store,
		bus:     bus,
		msgs:    services.NewMessageService(store.Rooms, store.Messages, bus, l),
		calls:   services.NewCallService(store.Rooms, store.Calls, nil, nil, bus, 0, l),
		student: student.Persona(),
		shop:    shop.Persona(),
		roomID:  roomID,
	}
}

// sessionFor starts a session whose active persona is p.
func (w *roomWorld) sessionFor(t *testing.T, p persona.Persona, msgs MessageChannel, ringTimeout time.Duration) *Session {
	t.Helper()
	l := logger.Nop()
	s := New(identity.Identity{UID: "uid-" + p.ID.String()}, Deps{
		Personas:    staticResolver{persona.Set{Personas: []persona.Persona{p}, Active: p}},
		Rooms:       services.NewRoomDirectory(w.store.Personas, w.store.Memberships, w.store.Rooms, l),
		Messages:    msgs,
		Calls:       w.calls,
		Logger:      l,
		RingTimeout: ringTimeout,
	})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Close)
	return s
}

func ids(list []message.Message) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(list))
	for _, m := range list {
		out = append(out, m.ID)
	}
	return out
}

func TestRoomViewDeduplicatesLiveMessages(t *testing.T) {
	w := newRoomWorld(t)
	ctx := context.Background()

	m1, err := w.msgs.Send(ctx, w.roomID, w.shop.ID, message.Content{Text: "m1"})
	require.NoError(t, err)
	m2, err := w.msgs.Send(ctx, w.roomID, w.shop.ID, message.Content{Text: "m2"})
	require.NoError(t, err)

	s := w.sessionFor(t, w.student, w.msgs, 0)
	require.Len(t, s.Rooms(), 1)
	view, err := s.OpenRoom(ctx, w.roomID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{m1.ID, m2.ID}, ids(view.Messages()))

	// The live channel delivers m2 a second time, then m3.
	env, err := events.NewEnvelope(events.EventTypeMessageCreated, events.AggregateTypeMessage, m2.ID.String(), m2)
	require.NoError(t, err)
	require.NoError(t, w.bus.Publish(ctx, events.RoomMessagesChannel(w.roomID), env))
	m3, err := w.msgs.Send(ctx, w.roomID, w.shop.ID, message.Content{Text: "m3"})
	require.NoError(t, err)

	waitFor(t, func() bool { return len(view.Messages()) >= 3 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []uuid.UUID{m1.ID, m2.ID, m3.ID}, ids(view.Messages()))

	// Opening marked history read; the live m3 is read by the pump.
	waitFor(t, func() bool {
		history, err := w.msgs.LoadHistory(ctx, w.roomID, w.student.ID)
		require.NoError(t, err)
		for _, m := range history {
			if !m.IsRead {
				return false
			}
		}
		return true
	})
}

func TestRoomViewRemovesDeletedMessages(t *testing.T) {
	w := newRoomWorld(t)
	ctx := context.Background()
	s := w.sessionFor(t, w.student, w.msgs, 0)
	view, err := s.OpenRoom(ctx, w.roomID)
	require.NoError(t, err)

	mine, err := view.Send(ctx, message.Content{Text: "typo"})
	require.NoError(t, err)
	theirs, err := w.msgs.Send(ctx, w.roomID, w.shop.ID, message.Content{Text: "hello"})
	require.NoError(t, err)
	waitFor(t, func() bool { return len(view.Messages()) == 2 })

	view.Select(mine.ID, theirs.ID, uuid.New())
	assert.Equal(t, []uuid.UUID{mine.ID, theirs.ID}, view.Selected())

	res, err := view.DeleteSelected(ctx)
	require.NoError(t, err)
	assert.Equal(t, message.DeleteResult{Requested: 2, Eligible: 1, Deleted: 1}, res)
	assert.Equal(t, []uuid.UUID{theirs.ID}, ids(view.Messages()))
	assert.Empty(t, view.Selected())
}

type failingSender struct {
	*services.MessageService
	fail bool
}

func (f *failingSender) Send(ctx context.Context, roomID, senderID uuid.UUID, content message.Content) (message.Message, error) {
	if f.fail {
		return message.Message{}, errors.New("network down")
	}
	return f.MessageService.Send(ctx, roomID, senderID, content)
}

func TestRoomViewKeepsDraftOnFailedSend(t *testing.T) {
	w := newRoomWorld(t)
	ctx := context.Background()
	sender := &failingSender{MessageService: w.msgs, fail: true}
	s := w.sessionFor(t, w.student, sender, 0)
	view, err := s.OpenRoom(ctx, w.roomID)
	require.NoError(t, err)

	_, err = view.Send(ctx, message.Content{Text: "can you hold it until friday?"})
	require.Error(t, err)
	assert.Equal(t, "can you hold it until friday?", view.Draft())
	assert.Empty(t, view.Messages())

	sender.fail = false
	m, err := view.Send(ctx, message.Content{Text: view.Draft()})
	require.NoError(t, err)
	assert.Empty(t, view.Draft())
	assert.Equal(t, []uuid.UUID{m.ID}, ids(view.Messages()))
}

func TestRoomViewRingTimeoutEndsCallAsMissed(t *testing.T) {
	w := newRoomWorld(t)
	ctx := context.Background()
	s := w.sessionFor(t, w.student, w.msgs, 50*time.Millisecond)
	view, err := s.OpenRoom(ctx, w.roomID)
	require.NoError(t, err)

	sig, err := view.StartCall(ctx, call.TypeVideo)
	require.NoError(t, err)
	assert.False(t, view.CallState().Incoming)

	waitFor(t, func() bool {
		st := view.CallState()
		return st.Signal != nil && st.Signal.Status == call.StatusEnded
	})
	st := view.CallState()
	assert.Equal(t, sig.ID, st.Signal.ID)
	assert.Equal(t, call.EndReasonMissed, st.Signal.EndReason)

	stored, err := w.store.Calls.GetByID(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, call.StatusEnded, stored.Status)
}

func TestRoomViewIncomingCall(t *testing.T) {
	w := newRoomWorld(t)
	ctx := context.Background()
	caller := w.sessionFor(t, w.student, w.msgs, time.Minute)
	callee := w.sessionFor(t, w.shop, w.msgs, time.Minute)

	callerView, err := caller.OpenRoom(ctx, w.roomID)
	require.NoError(t, err)
	calleeView, err := callee.OpenRoom(ctx, w.roomID)
	require.NoError(t, err)

	_, err = calleeView.AnswerCall(ctx)
	assert.Error(t, err)

	sig, err := callerView.StartCall(ctx, call.TypeVoice)
	require.NoError(t, err)
	waitFor(t, func() bool { return calleeView.CallState().Incoming })

	answered, err := calleeView.AnswerCall(ctx)
	require.NoError(t, err)
	assert.Equal(t, call.StatusConnected, answered.Status)
	waitFor(t, func() bool {
		st := callerView.CallState()
		return st.Signal != nil && st.Signal.Status == call.StatusConnected
	})

	ended, err := callerView.EndCall(ctx)
	require.NoError(t, err)
	assert.Equal(t, sig.ID, ended.ID)
	assert.Equal(t, call.EndReasonCompleted, ended.EndReason)
	waitFor(t, func() bool {
		st := calleeView.CallState()
		return st.Signal != nil && st.Signal.Status == call.StatusEnded
	})
}

func TestOpenRoomClosesPreviousView(t *testing.T) {
	w := newRoomWorld(t)
	ctx := context.Background()
	s := w.sessionFor(t, w.student, w.msgs, 0)

	first, err := s.OpenRoom(ctx, w.roomID)
	require.NoError(t, err)
	second, err := s.OpenRoom(ctx, w.roomID)
	require.NoError(t, err)

	_, err = w.msgs.Send(ctx, w.roomID, w.shop.ID, message.Content{Text: "only the open view sees this"})
	require.NoError(t, err)
	waitFor(t, func() bool { return len(second.Messages()) == 1 })
	assert.Empty(t, first.Messages())

	// The first view is closed: its subscription is gone.
	waitFor(t, func() bool { return w.bus.Subscribers(events.RoomMessagesChannel(w.roomID)) == 1 })
}

func TestRoomViewReceiptOnlyCoversEarlierMessages(t *testing.T) {
	w := newRoomWorld(t)
	ctx := context.Background()
	s := w.sessionFor(t, w.student, w.msgs, 0)
	view, err := s.OpenRoom(ctx, w.roomID)
	require.NoError(t, err)

	before, err := view.Send(ctx, message.Content{Text: "still available?"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	after, err := view.Send(ctx, message.Content{Text: "I can pick it up today"})
	require.NoError(t, err)
	require.True(t, after.CreatedAt.After(before.CreatedAt))

	// The counterpart's sweep happened before the second message was sent.
	env, err := events.NewEnvelope(events.EventTypeMessageRead, events.AggregateTypeRoom, w.roomID.String(), map[string]any{
		"reader_id": w.shop.ID,
		"count":     1,
		"at":        before.CreatedAt,
	})
	require.NoError(t, err)
	require.NoError(t, w.bus.Publish(ctx, events.RoomMessagesChannel(w.roomID), env))

	byID := func(id uuid.UUID) message.Message {
		for _, m := range view.Messages() {
			if m.ID == id {
				return m
			}
		}
		t.Fatalf("message %s not in view", id)
		return message.Message{}
	}
	waitFor(t, func() bool { return byID(before.ID).IsRead })
	time.Sleep(20 * time.Millisecond)
	assert.True(t, byID(before.ID).Delivered)
	assert.False(t, byID(after.ID).IsRead)
	assert.False(t, byID(after.ID).Delivered)
}

// slowHistory holds LoadHistory until released.
type slowHistory struct {
	*services.MessageService
	started chan struct{}
	release chan struct{}
}

func (h *slowHistory) LoadHistory(ctx context.Context, roomID, viewerID uuid.UUID) ([]message.Message, error) {
	h.started <- struct{}{}
	<-h.release
	return h.MessageService.LoadHistory(ctx, roomID, viewerID)
}

func TestOpenRoomDiscardsStaleLoad(t *testing.T) {
	w := newRoomWorld(t)
	ctx := context.Background()
	slow := &slowHistory{MessageService: w.msgs, started: make(chan struct{}, 1), release: make(chan struct{})}
	s := w.sessionFor(t, w.student, slow, 0)

	type result struct {
		view *RoomView
		err  error
	}
	done := make(chan result, 1)
	go func() {
		v, err := s.OpenRoom(ctx, w.roomID)
		done <- result{v, err}
	}()

	<-slow.started
	s.Close()
	close(slow.release)

	res := <-done
	assert.NoError(t, res.err)
	assert.Nil(t, res.view)
	waitFor(t, func() bool { return w.bus.Subscribers(events.RoomMessagesChannel(w.roomID)) == 0 })
}
