package session

import (
	"context"
	"sync"
	"time"

	"marketchat/internal/domain/call"
	"marketchat/internal/domain/message"
	"marketchat/internal/domain/persona"
	"marketchat/internal/services"
	marketchat_errors "marketchat/pkg/errors"
	"marketchat/pkg/logger"

	"github.com/google/uuid"
)

// CallState is the room's call as the local persona sees it.
type CallState struct {
	Signal   *call.Signal
	Incoming bool
}

// RoomView is one open room: its message list, the composer draft, the
// selection and the call state.
type RoomView struct {
	RoomID uuid.UUID

	session *Session
	token   uint64
	self    persona.Persona
	log     *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	messages  []message.Message
	seen      map[uuid.UUID]bool
	draft     string
	selected  map[uuid.UUID]bool
	call      *call.Signal
	ringTimer *time.Timer
	closed    bool
	wg        sync.WaitGroup
}

// OpenRoom subscribes to the room, loads its history and marks it read. The
// subscription is made before the history load so nothing sent in between
// is missed; duplicates are dropped by id. If the session moved on while the
// room was loading (another room opened, persona switched, session closed)
// the result is discarded and OpenRoom returns a nil view and nil error.
func (s *Session) OpenRoom(ctx context.Context, roomID uuid.UUID) (*RoomView, error) {
	s.mu.Lock()
	prev := s.detachViewLocked()
	token := s.roomToken
	self := s.active
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	viewCtx, cancel := context.WithCancel(context.Background())
	v := &RoomView{
		RoomID:   roomID,
		session:  s,
		token:    token,
		self:     self,
		log:      s.log,
		ctx:      viewCtx,
		cancel:   cancel,
		seen:     make(map[uuid.UUID]bool),
		selected: make(map[uuid.UUID]bool),
	}

	msgStream, err := s.deps.Messages.Subscribe(viewCtx, roomID)
	if err != nil {
		cancel()
		return nil, err
	}
	history, err := s.deps.Messages.LoadHistory(ctx, roomID, self.ID)
	if err != nil {
		msgStream.Close()
		cancel()
		return nil, err
	}
	var callStream *services.CallStream
	if s.deps.Calls != nil {
		callStream, err = s.deps.Calls.SubscribeCalls(viewCtx, roomID)
		if err != nil {
			msgStream.Close()
			cancel()
			return nil, err
		}
	}

	s.mu.Lock()
	if s.roomToken != token {
		s.mu.Unlock()
		msgStream.Close()
		if callStream != nil {
			callStream.Close()
		}
		cancel()
		s.log.Debugf("discarding room %s: %v", roomID, marketchat_errors.ErrStaleResult)
		return nil, nil
	}
	s.view = v
	s.mu.Unlock()

	for _, m := range history {
		v.add(m)
	}
	v.wg.Add(1)
	go v.pumpMessages(msgStream)
	if callStream != nil {
		v.wg.Add(1)
		go v.pumpCalls(callStream)
	}

	if _, err := s.deps.Messages.MarkRead(ctx, roomID, self.ID); err != nil {
		v.log.Warnf("mark room %s read on open: %v", roomID, err)
	}
	return v, nil
}

func (v *RoomView) current() bool {
	return v.session.roomCurrent(v.token)
}

// add appends m unless a message with its id is already present.
func (v *RoomView) add(m message.Message) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.seen[m.ID] {
		return false
	}
	v.seen[m.ID] = true
	v.messages = append(v.messages, m)
	return true
}

func (v *RoomView) remove(ids []uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	drop := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
		delete(v.selected, id)
	}
	kept := v.messages[:0]
	for _, m := range v.messages {
		if !drop[m.ID] {
			kept = append(kept, m)
		}
	}
	v.messages = kept
}

// advanceOwn moves the local persona's messages sent up to at to status
// after the counterpart's receipt. Status never moves backward.
func (v *RoomView) advanceOwn(status message.Status, at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.messages {
		m := &v.messages[i]
		if m.SenderID != v.self.ID || m.CreatedAt.After(at) {
			continue
		}
		if m.Status() == status || !message.CanAdvance(m.Status(), status) {
			continue
		}
		t := at
		if !m.Delivered {
			m.Delivered, m.DeliveredAt = true, &t
		}
		if status == message.StatusRead {
			m.IsRead, m.ReadAt = true, &t
		}
	}
}

func (v *RoomView) pumpMessages(stream *services.MessageStream) {
	defer v.wg.Done()
	defer stream.Close()
	for {
		select {
		case <-v.ctx.Done():
			return
		case ch, ok := <-stream.Changes():
			if !ok {
				return
			}
			if !v.current() {
				continue
			}
			switch ch.Kind {
			case services.ChangeInserted:
				if v.add(ch.Message) && ch.Message.SenderID != v.self.ID {
					if _, err := v.session.deps.Messages.MarkRead(v.ctx, v.RoomID, v.self.ID); err != nil {
						v.log.Warnf("mark room %s read: %v", v.RoomID, err)
					}
				}
			case services.ChangeDeleted:
				v.remove(ch.IDs)
			case services.ChangeRead:
				if ch.ReaderID != v.self.ID {
					v.advanceOwn(message.StatusRead, ch.At)
				}
			case services.ChangeDelivered:
				if ch.ReaderID != v.self.ID {
					v.advanceOwn(message.StatusDelivered, ch.At)
				}
			}
		}
	}
}

func (v *RoomView) pumpCalls(stream *services.CallStream) {
	defer v.wg.Done()
	defer stream.Close()
	for {
		select {
		case <-v.ctx.Done():
			return
		case sig, ok := <-stream.Signals():
			if !ok {
				return
			}
			if v.current() {
				v.applySignal(sig)
			}
		}
	}
}

// applySignal records sig unless it belongs to an older call than the one
// already shown.
func (v *RoomView) applySignal(sig call.Signal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if v.call != nil && v.call.ID != sig.ID && v.call.Active() && sig.CreatedAt.Before(v.call.CreatedAt) {
		return
	}
	if v.call != nil && v.call.ID == sig.ID && !statusAfter(v.call.Status, sig.Status) {
		return
	}
	cp := sig
	v.call = &cp
	if sig.Status != call.StatusRinging && v.ringTimer != nil {
		v.ringTimer.Stop()
		v.ringTimer = nil
	}
}

func statusAfter(cur, next call.Status) bool {
	return cur == next || call.CanTransition(cur, next)
}

// Messages returns the list in arrival order.
func (v *RoomView) Messages() []message.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]message.Message(nil), v.messages...)
}

func (v *RoomView) SetDraft(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.draft = text
}

func (v *RoomView) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

// Send posts content. On failure the draft keeps the text so it can be
// retried; on success the draft is cleared.
func (v *RoomView) Send(ctx context.Context, content message.Content) (message.Message, error) {
	v.SetDraft(content.Text)
	m, err := v.session.deps.Messages.Send(ctx, v.RoomID, v.self.ID, content)
	if err != nil {
		return message.Message{}, err
	}
	if !v.current() {
		return m, nil
	}
	v.add(m)
	v.mu.Lock()
	if v.draft == content.Text {
		v.draft = ""
	}
	v.mu.Unlock()
	return m, nil
}

// Select adds ids of messages in the view to the selection. Any message can
// be selected; DeleteSelected only removes the local persona's own.
func (v *RoomView) Select(ids ...uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		if v.indexOf(id) >= 0 {
			v.selected[id] = true
		}
	}
}

func (v *RoomView) indexOf(id uuid.UUID) int {
	for i, m := range v.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// ownSelected is the part of ids the local persona sent.
func (v *RoomView) ownSelected(ids []uuid.UUID) []uuid.UUID {
	v.mu.Lock()
	defer v.mu.Unlock()
	own := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if i := v.indexOf(id); i >= 0 && v.messages[i].SenderID == v.self.ID {
			own = append(own, id)
		}
	}
	return own
}

func (v *RoomView) ClearSelection() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = make(map[uuid.UUID]bool)
}

func (v *RoomView) Selected() []uuid.UUID {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]uuid.UUID, 0, len(v.selected))
	for _, m := range v.messages {
		if v.selected[m.ID] {
			out = append(out, m.ID)
		}
	}
	return out
}

// DeleteSelected asks to delete the whole selection and clears it. The
// result reports how many of the selected messages were the persona's own
// and actually deleted; only those leave the view.
func (v *RoomView) DeleteSelected(ctx context.Context) (message.DeleteResult, error) {
	ids := v.Selected()
	if len(ids) == 0 {
		return message.DeleteResult{}, nil
	}
	own := v.ownSelected(ids)
	res, err := v.session.deps.Messages.DeleteOwn(ctx, v.RoomID, v.self.ID, ids)
	if err != nil {
		return res, err
	}
	if v.current() && res.Deleted > 0 {
		v.remove(own)
	}
	v.ClearSelection()
	return res, nil
}

// StartCall rings the counterpart. If nobody answers within the ring
// timeout the call is ended as missed.
func (v *RoomView) StartCall(ctx context.Context, t call.Type) (call.Signal, error) {
	calls := v.session.deps.Calls
	if calls == nil {
		return call.Signal{}, marketchat_errors.ErrServiceUnavailable
	}
	sig, err := calls.Start(ctx, v.RoomID, v.self.ID, t)
	if err != nil {
		return call.Signal{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return sig, nil
	}
	cp := sig
	v.call = &cp
	if v.ringTimer != nil {
		v.ringTimer.Stop()
	}
	v.ringTimer = time.AfterFunc(v.session.deps.RingTimeout, func() { v.ringExpired(sig.ID) })
	return sig, nil
}

func (v *RoomView) ringExpired(callID uuid.UUID) {
	v.mu.Lock()
	ringing := !v.closed && v.call != nil && v.call.ID == callID && v.call.Status == call.StatusRinging
	v.mu.Unlock()
	if !ringing {
		return
	}
	sig, err := v.session.deps.Calls.End(v.ctx, callID, v.self.ID, call.EndReasonMissed)
	if err != nil {
		v.log.Debugf("ring timeout for call %s: %v", callID, err)
		return
	}
	v.applySignal(sig)
}

// AnswerCall accepts the incoming call.
func (v *RoomView) AnswerCall(ctx context.Context) (call.Signal, error) {
	st := v.CallState()
	if !st.Incoming {
		return call.Signal{}, marketchat_errors.ErrInvalidTransition
	}
	sig, err := v.session.deps.Calls.Answer(ctx, st.Signal.ID, v.self.ID)
	if err != nil {
		return call.Signal{}, err
	}
	v.applySignal(sig)
	return sig, nil
}

// DeclineCall rejects the incoming call.
func (v *RoomView) DeclineCall(ctx context.Context) (call.Signal, error) {
	st := v.CallState()
	if !st.Incoming {
		return call.Signal{}, marketchat_errors.ErrInvalidTransition
	}
	return v.endCall(ctx, st.Signal.ID, call.EndReasonDeclined)
}

// EndCall hangs up the active call, whichever side started it.
func (v *RoomView) EndCall(ctx context.Context) (call.Signal, error) {
	st := v.CallState()
	if st.Signal == nil || !st.Signal.Active() {
		return call.Signal{}, marketchat_errors.ErrInvalidTransition
	}
	return v.endCall(ctx, st.Signal.ID, "")
}

func (v *RoomView) endCall(ctx context.Context, callID uuid.UUID, reason string) (call.Signal, error) {
	sig, err := v.session.deps.Calls.End(ctx, callID, v.self.ID, reason)
	if err != nil {
		return call.Signal{}, err
	}
	v.applySignal(sig)
	return sig, nil
}

func (v *RoomView) CallState() CallState {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.call == nil {
		return CallState{}
	}
	cp := *v.call
	return CallState{
		Signal:   &cp,
		Incoming: cp.Status == call.StatusRinging && cp.ReceiverID == v.self.ID,
	}
}

// Close stops both live streams and the ring timer.
func (v *RoomView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	if v.ringTimer != nil {
		v.ringTimer.Stop()
		v.ringTimer = nil
	}
	v.mu.Unlock()

	v.cancel()
	v.wg.Wait()

	s := v.session
	s.mu.Lock()
	if s.view == v {
		s.detachViewLocked()
	}
	s.mu.Unlock()
}
