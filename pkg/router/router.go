// Package router is the dispatch engine: it accepts inbound intents from
// connection transports, mutates the presence registry and history store,
// fans deliveries out to live sessions, and resolves exactly one
// acknowledgment per send intent.
package router

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/mahaj/chat-core/pkg/history"
	"github.com/mahaj/chat-core/pkg/model"
	"github.com/mahaj/chat-core/pkg/presence"
	"github.com/mahaj/chat-core/pkg/snowflake"
)

// MaxContentLen bounds message content in runes, after trimming.
const MaxContentLen = 255

var (
	ErrEmptyUsername        = errors.New("router: empty username")
	ErrEmptyContent         = errors.New("router: empty message content")
	ErrContentTooLong       = errors.New("router: message content too long")
	ErrRecipientUnavailable = errors.New("router: recipient not connected")
	ErrClosed               = errors.New("router: dispatch loop stopped")
)

// sideEffectTimeout bounds mirror and sink calls, which run off the loop.
const sideEffectTimeout = 5 * time.Second

// Sink receives every committed global message after fan-out, outside the
// acknowledgment path. The kafka export satisfies this.
type Sink interface {
	Publish(ctx context.Context, msg *model.Message) error
}

// Result resolves one send intent: ServerID when the message was committed,
// Err otherwise. Exactly one Result exists per intent.
type Result struct {
	ServerID int64
	Err      error
}

type Router struct {
	store    history.Store
	registry *presence.Registry
	ids      *snowflake.Node
	mirror   presence.Mirror
	sink     Sink
	log      zerolog.Logger

	intents  chan intent
	done     chan struct{}
	sessions map[string]*Session // live sessions, owned by the Run loop
}

type Option func(*Router)

// WithMirror reflects join/leave into an out-of-process presence reader.
func WithMirror(m presence.Mirror) Option {
	return func(r *Router) { r.mirror = m }
}

// WithSink forwards committed global messages to a side-effect consumer.
func WithSink(s Sink) Option {
	return func(r *Router) { r.sink = s }
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *Router) { r.log = log }
}

func New(store history.Store, registry *presence.Registry, ids *snowflake.Node, opts ...Option) *Router {
	r := &Router{
		store:    store,
		registry: registry,
		ids:      ids,
		log:      zerolog.Nop(),
		intents:  make(chan intent),
		done:     make(chan struct{}),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes intents until ctx is cancelled. All registry and history
// mutation happens here, one intent at a time, which is what keeps serverId
// assignment monotonic and typing/participant removal atomic. Per-connection
// FIFO holds because each transport submits its intents sequentially.
func (r *Router) Run(ctx context.Context) {
	defer r.shutdown()
	for {
		select {
		case in := <-r.intents:
			r.dispatch(in)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) dispatch(in intent) {
	switch in := in.(type) {
	case joinIntent:
		r.handleJoin(in)
	case sendGlobalIntent:
		r.handleSendGlobal(in)
	case sendDirectIntent:
		r.handleSendDirect(in)
	case typingIntent:
		r.handleTyping(in)
	case leaveIntent:
		r.handleLeave(in)
	}
}

func (r *Router) shutdown() {
	close(r.done)
	for id, sess := range r.sessions {
		delete(r.sessions, id)
		sess.close()
	}
}

func (r *Router) submit(ctx context.Context, in intent) error {
	select {
	case r.intents <- in:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join registers the session under username and announces it to everyone,
// the joiner included. ErrDuplicateConnection means the transport broke its
// contract; callers should drop that connection.
func (r *Router) Join(ctx context.Context, sess *Session, username string) (model.Participant, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return model.Participant{}, ErrEmptyUsername
	}

	in := joinIntent{sess: sess, username: username, reply: make(chan joinResult, 1)}
	if err := r.submit(ctx, in); err != nil {
		return model.Participant{}, err
	}
	select {
	case res := <-in.reply:
		return res.participant, res.err
	case <-r.done:
		return model.Participant{}, ErrClosed
	case <-ctx.Done():
		return model.Participant{}, ctx.Err()
	}
}

// SendGlobal validates, commits, and broadcasts a global message. The
// returned server id is assigned in append order; validation failures reject
// before any mutation.
func (r *Router) SendGlobal(ctx context.Context, sessID, content string, tempID int64) (int64, error) {
	content, err := validateContent(content)
	if err != nil {
		return 0, err
	}

	in := sendGlobalIntent{sessID: sessID, content: content, tempID: tempID, reply: make(chan Result, 1)}
	if err := r.submit(ctx, in); err != nil {
		return 0, err
	}
	return r.await(ctx, in.reply)
}

// SendDirect delivers a private message to one live recipient and echoes it
// to the sender. Direct messages are never persisted to history.
func (r *Router) SendDirect(ctx context.Context, sessID, to, content string, tempID int64) (int64, error) {
	content, err := validateContent(content)
	if err != nil {
		return 0, err
	}

	in := sendDirectIntent{sessID: sessID, to: to, content: content, tempID: tempID, reply: make(chan Result, 1)}
	if err := r.submit(ctx, in); err != nil {
		return 0, err
	}
	return r.await(ctx, in.reply)
}

// SetTyping updates the sender's typing state and broadcasts the typing
// list. Unknown senders are a no-op: a typing event racing a disconnect must
// not crash the dispatcher or resurrect the participant.
func (r *Router) SetTyping(ctx context.Context, sessID string, typing bool) error {
	return r.submit(ctx, typingIntent{sessID: sessID, typing: typing})
}

// Leave unregisters the session. The departure is announced only when a
// participant was actually removed, so a duplicate disconnect stays silent.
func (r *Router) Leave(ctx context.Context, sessID string) (model.Participant, bool, error) {
	in := leaveIntent{sessID: sessID, reply: make(chan leaveResult, 1)}
	if err := r.submit(ctx, in); err != nil {
		return model.Participant{}, false, err
	}
	select {
	case res := <-in.reply:
		return res.participant, res.removed, nil
	case <-r.done:
		return model.Participant{}, false, ErrClosed
	case <-ctx.Done():
		return model.Participant{}, false, ctx.Err()
	}
}

func (r *Router) await(ctx context.Context, reply chan Result) (int64, error) {
	select {
	case res := <-reply:
		return res.ServerID, res.Err
	case <-r.done:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLen {
		return "", ErrContentTooLong
	}
	return content, nil
}

func (r *Router) handleJoin(in joinIntent) {
	p, err := r.registry.Join(in.sess.ID, in.username)
	if err != nil {
		in.reply <- joinResult{err: err}
		return
	}
	r.sessions[in.sess.ID] = in.sess

	r.broadcast(model.EventUserList, r.registry.List())
	r.broadcast(model.EventUserJoined, p)
	in.reply <- joinResult{participant: p}

	r.mirrorJoined(p)
	r.log.Info().Str("conn", p.ID).Str("username", p.Username).Msg("participant joined")
}

func (r *Router) handleSendGlobal(in sendGlobalIntent) {
	sender, ok := r.registry.Get(in.sessID)
	if !ok {
		in.reply <- Result{Err: presence.ErrNotFound}
		return
	}

	msg := &model.Message{
		ID:        r.ids.Generate(),
		TempID:    in.tempID,
		SenderID:  sender.ID,
		Sender:    sender.Username,
		Content:   in.content,
		Timestamp: time.Now().UTC(),
	}

	if err := r.store.Append(context.Background(), msg); err != nil {
		r.log.Error().Err(err).Msg("history append failed")
		in.reply <- Result{Err: err}
		return
	}

	// The ack is computed from the committed message; it never waits on
	// any recipient's outbound queue.
	r.broadcast(model.EventReceiveMessage, msg)
	in.reply <- Result{ServerID: msg.ID}

	if r.sink != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
			defer cancel()
			if err := r.sink.Publish(ctx, msg); err != nil {
				r.log.Warn().Err(err).Int64("id", msg.ID).Msg("sink publish failed")
			}
		}()
	}
}

func (r *Router) handleSendDirect(in sendDirectIntent) {
	sender, ok := r.registry.Get(in.sessID)
	if !ok {
		in.reply <- Result{Err: presence.ErrNotFound}
		return
	}

	target, live := r.sessions[in.to]
	if !live {
		in.reply <- Result{Err: ErrRecipientUnavailable}
		return
	}

	msg := &model.Message{
		ID:          r.ids.Generate(),
		TempID:      in.tempID,
		SenderID:    sender.ID,
		Sender:      sender.Username,
		RecipientID: in.to,
		Content:     in.content,
		Timestamp:   time.Now().UTC(),
		Private:     true,
	}

	frame, err := model.Encode(model.EventPrivateMessage, msg)
	if err != nil {
		in.reply <- Result{Err: err}
		return
	}

	r.deliver(in.to, target, frame)
	if origin, ok := r.sessions[in.sessID]; ok {
		r.deliver(in.sessID, origin, frame)
	}
	in.reply <- Result{ServerID: msg.ID}
}

func (r *Router) handleTyping(in typingIntent) {
	if err := r.registry.SetTyping(in.sessID, in.typing); err != nil {
		// Disconnect race; nothing to announce.
		return
	}
	r.broadcast(model.EventTypingUsers, r.registry.Typing())
}

func (r *Router) handleLeave(in leaveIntent) {
	if sess, live := r.sessions[in.sessID]; live {
		delete(r.sessions, in.sessID)
		sess.close()
	}

	p, err := r.registry.Leave(in.sessID)
	if err != nil {
		in.reply <- leaveResult{}
		return
	}

	r.broadcast(model.EventUserLeft, p)
	r.broadcast(model.EventUserList, r.registry.List())
	r.broadcast(model.EventTypingUsers, r.registry.Typing())
	in.reply <- leaveResult{participant: p, removed: true}

	r.mirrorLeft(p)
	r.log.Info().Str("conn", p.ID).Str("username", p.Username).Msg("participant left")
}

func (r *Router) broadcast(t model.EventType, data any) {
	frame, err := model.Encode(t, data)
	if err != nil {
		r.log.Error().Err(err).Str("event", string(t)).Msg("encode failed")
		return
	}
	for id, sess := range r.sessions {
		r.deliver(id, sess, frame)
	}
}

// deliver enqueues without blocking. A full buffer means the consumer is too
// slow to keep: the session is cut loose here, and the transport's own leave
// path announces the departure once it notices the closed channel.
func (r *Router) deliver(id string, sess *Session, frame []byte) {
	if !sess.TrySend(frame) {
		delete(r.sessions, id)
		sess.close()
		r.log.Warn().Str("conn", id).Msg("dropping slow consumer")
	}
}

func (r *Router) mirrorJoined(p model.Participant) {
	if r.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := r.mirror.Joined(ctx, p); err != nil {
			r.log.Warn().Err(err).Str("conn", p.ID).Msg("presence mirror join failed")
		}
	}()
}

func (r *Router) mirrorLeft(p model.Participant) {
	if r.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := r.mirror.Left(ctx, p); err != nil {
			r.log.Warn().Err(err).Str("conn", p.ID).Msg("presence mirror leave failed")
		}
	}()
}
