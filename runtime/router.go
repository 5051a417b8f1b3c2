package runtime

import (
	"chat-router/codec"
	"chat-router/contract"
	"chat-router/domain"
	routerErrors "chat-router/errors"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// Router is the routing engine. It resolves the sender of every envelope,
// computes its destinations and publishes one copy per private inbox.
// Handle is safe for concurrent use: all shared state lives in the Directory,
// the GroupRegistry and the MessageCache, each guarding itself.
type Router struct {
	log              *slog.Logger
	directory        *Directory
	groups           *GroupRegistry
	messages         *MessageCache
	publisher        contract.Publisher
	monitor          contract.Monitor
	naming           domain.Naming
	clock            Clock
	messageIDs       IDGenerator
	stamp            *stamper
	fanoutGroupEdits bool
}

type Option func(*Router)

func WithClock(clock Clock) Option {
	return func(r *Router) { r.clock = clock }
}

func WithMessageIDs(ids IDGenerator) Option {
	return func(r *Router) { r.messageIDs = ids }
}

func WithNaming(naming domain.Naming) Option {
	return func(r *Router) { r.naming = naming }
}

// WithGroupEditFanout delivers edits addressed to a group to every member
// except the editor instead of the single group destination.
func WithGroupEditFanout(enabled bool) Option {
	return func(r *Router) { r.fanoutGroupEdits = enabled }
}

func NewRouter(log *slog.Logger, directory *Directory, groups *GroupRegistry,
	messages *MessageCache, publisher contract.Publisher, monitor contract.Monitor, opts ...Option) *Router {
	r := &Router{
		log:        log,
		directory:  directory,
		groups:     groups,
		messages:   messages,
		publisher:  publisher,
		monitor:    monitor,
		naming:     domain.DefaultNaming(),
		clock:      RealClock{},
		messageIDs: UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.monitor == nil {
		r.monitor = nopMonitor{}
	}
	r.stamp = &stamper{clock: r.clock}
	return r
}

// Handle processes one inbound delivery. The returned error only concerns
// this delivery; the caller logs it and moves on to the next one.
func (r *Router) Handle(ctx context.Context, in domain.Inbound) error {
	start := time.Now()
	defer func() { r.monitor.ProcessingTime(time.Since(start)) }()

	env, err := codec.Decode(in)
	if err != nil {
		if in.RoutingKey == domain.RegisterKey {
			// The payload may not have decoded at all: answer from the delivery itself.
			reg, _ := env.(domain.Register)
			reg.ReplyTo, reg.CorrelationID = in.ReplyTo, in.CorrelationID
			r.reply(ctx, reg, domain.RegisterReply{Username: reg.Username, Error: err.Error()})
		}
		return err
	}

	switch e := env.(type) {
	case domain.Register:
		return r.register(ctx, e)
	case domain.Message:
		return r.routeMessage(ctx, e)
	case domain.File:
		return r.routeFile(ctx, e)
	case domain.Image:
		return r.routeImage(ctx, e)
	case domain.Edit:
		return r.routeEdit(ctx, e)
	case domain.CreateGroup:
		return r.createGroup(ctx, e)
	case domain.JoinGroup:
		return r.joinGroup(ctx, e)
	case domain.LeaveGroup:
		return r.leaveGroup(ctx, e)
	default:
		return fmt.Errorf("%w: %T", routerErrors.ErrUnknownRoutingKey, env)
	}
}

func (r *Router) register(ctx context.Context, e domain.Register) error {
	user, err := r.directory.Register(e.Username, e.RequestedID)
	if err != nil {
		r.log.Warn("Registration refused", "username", e.Username, "requested_id", e.RequestedID, "error", err)
		r.reply(ctx, e, domain.RegisterReply{Username: e.Username, Error: routerErrors.ErrDuplicateID.Error()})
		return err
	}
	r.log.Info("Registered user", "user_id", user.ID, "username", user.DisplayName)
	r.monitor.UserRegistered(user.ID, user.DisplayName)
	r.reply(ctx, e, domain.RegisterReply{UserID: user.ID, Username: user.DisplayName})
	return nil
}

// reply answers a registration request. A failed reply leaves the requester
// waiting but does not undo the registration.
func (r *Router) reply(ctx context.Context, e domain.Register, reply domain.RegisterReply) {
	if e.ReplyTo == "" {
		r.log.Warn("Registration without reply destination", "username", e.Username,
			"error", routerErrors.ErrMissingReplyTo)
		return
	}
	body, err := codec.EncodeReply(reply)
	if err != nil {
		r.log.Error("Failed to encode registration reply", "error", err)
		return
	}
	if err = r.publisher.Reply(ctx, e.ReplyTo, e.CorrelationID, body); err != nil {
		r.log.Error("Failed to reply to registration", "reply_to", e.ReplyTo, "error", err)
	}
}

func (r *Router) routeMessage(ctx context.Context, m domain.Message) error {
	sender, err := r.resolveSender(m.SenderID)
	if err != nil {
		return err
	}
	if m.MessageID == "" {
		m.MessageID = r.messageIDs.New()
	}
	r.messages.Record(m.MessageID, sender.ID, m.Content, m.ToID)

	payload := domain.Outbound{
		Type:      domain.TextPayload,
		Message:   m.Content,
		MessageID: m.MessageID,
		Sender:    sender.DisplayName,
		SenderID:  sender.ID,
		Timestamp: r.stamp.Stamp(),
	}
	r.monitor.Sent(domain.MessageKey, sender.ID, m.ToID, len(m.Content), nil)
	return r.dispatch(ctx, domain.MessageKey, sender, m.ToID, payload, len(m.Content))
}

func (r *Router) routeFile(ctx context.Context, f domain.File) error {
	sender, err := r.resolveSender(f.SenderID)
	if err != nil {
		return err
	}
	payload := domain.Outbound{
		Type:      domain.FilePayload,
		File:      f.FileName,
		Data:      f.Data,
		Sender:    sender.DisplayName,
		SenderID:  sender.ID,
		Timestamp: r.stamp.Stamp(),
	}
	r.monitor.Sent(domain.FileKey, sender.ID, f.ToID, len(f.Data),
		map[string]any{"file": f.FileName, "mime": detectMIME(f.Data)})
	return r.dispatch(ctx, domain.FileKey, sender, f.ToID, payload, len(f.Data))
}

func (r *Router) routeImage(ctx context.Context, i domain.Image) error {
	sender, err := r.resolveSender(i.SenderID)
	if err != nil {
		return err
	}
	payload := domain.Outbound{
		Type:      domain.ImagePayload,
		Image:     i.Data,
		Sender:    sender.DisplayName,
		SenderID:  sender.ID,
		Timestamp: r.stamp.Stamp(),
	}
	r.monitor.Sent(domain.ImageKey, sender.ID, i.ToID, len(i.Data),
		map[string]any{"mime": detectMIME(i.Data)})
	return r.dispatch(ctx, domain.ImageKey, sender, i.ToID, payload, len(i.Data))
}

// routeEdit forwards an authorized edit to a single destination: the edit's
// toId, or the target recorded with the original message when toId is absent.
// Unauthorized and unknown edits are dropped without a reply.
func (r *Router) routeEdit(ctx context.Context, e domain.Edit) error {
	sender, err := r.resolveSender(e.SenderID)
	if err != nil {
		return err
	}
	msg, err := r.messages.ApplyEdit(e.MessageID, sender.ID, e.NewContent)
	if err != nil {
		r.log.Warn("Edit dropped", "message_id", e.MessageID, "sender_id", sender.ID, "error", err)
		return err
	}

	target := e.ToID
	if target == "" {
		target = msg.TargetID
	}
	payload := domain.Outbound{
		Type:              domain.EditPayload,
		OriginalMessageID: msg.MessageID,
		NewMessage:        msg.CurrentContent,
		Sender:            sender.DisplayName,
		SenderID:          sender.ID,
		Timestamp:         r.stamp.Stamp(),
	}
	r.monitor.Sent(domain.EditKey, sender.ID, target, len(e.NewContent), nil)

	isGroup := r.groups.Exists(target)
	if isGroup && r.fanoutGroupEdits {
		return r.dispatch(ctx, domain.EditKey, sender, target, payload, len(e.NewContent))
	}
	if isGroup {
		payload = payload.WithGroup(target)
	}
	if err = r.deliverTo(ctx, target, payload); err != nil {
		return err
	}
	r.monitor.Received(domain.EditKey, target, sender.ID, len(e.NewContent))
	return nil
}

func (r *Router) createGroup(ctx context.Context, e domain.CreateGroup) error {
	creator, err := r.resolveSender(e.SenderID)
	if err != nil {
		return err
	}
	if e.CreatedBy != creator.ID {
		err = fmt.Errorf("%w: %s sent by %s", routerErrors.ErrCreatorMismatch, e.CreatedBy, creator.ID)
		r.log.Warn("Group creation refused", "group_id", e.GroupID, "user_id", creator.ID, "error", err)
		r.notifyError(ctx, creator.ID, e.GroupID, err)
		return err
	}
	group, err := r.groups.Create(e.GroupID, e.Name, creator.ID, r.clock.Now())
	if err != nil {
		r.log.Warn("Group creation refused", "group_id", e.GroupID, "user_id", creator.ID, "error", err)
		r.notifyError(ctx, creator.ID, e.GroupID, err)
		return err
	}
	r.log.Info("Group created", "group_id", group.ID, "name", group.Name, "created_by", creator.ID)
	r.monitor.GroupCreated(group.ID, group.Name)

	return r.deliverTo(ctx, creator.ID, domain.Outbound{
		Type:      domain.GroupCreated,
		GroupID:   group.ID,
		GroupName: group.Name,
		UserID:    creator.ID,
		Username:  creator.DisplayName,
		Members:   group.MemberIDs(),
		Timestamp: r.stamp.Stamp(),
	})
}

// joinGroup acknowledges the joiner and tells every other member. Re-joining
// repeats both notifications, which clients use as a presence ping.
func (r *Router) joinGroup(ctx context.Context, e domain.JoinGroup) error {
	joiner, err := r.resolveSender(e.SenderID)
	if err != nil {
		return err
	}
	result, err := r.groups.Join(e.GroupID, joiner.ID)
	if err != nil {
		r.log.Warn("Join refused", "group_id", e.GroupID, "user_id", joiner.ID, "error", err)
		r.notifyError(ctx, joiner.ID, e.GroupID, err)
		return err
	}
	r.monitor.GroupJoined(result.Group.ID, joiner.ID, len(result.Group.Members))

	at := r.stamp.Stamp()
	ack := domain.Outbound{
		Type:      domain.GroupJoined,
		GroupID:   result.Group.ID,
		GroupName: result.Group.Name,
		UserID:    joiner.ID,
		Username:  joiner.DisplayName,
		Members:   result.Group.MemberIDs(),
		Timestamp: at,
	}
	notice := domain.Outbound{
		Type:      domain.MemberJoined,
		GroupID:   result.Group.ID,
		GroupName: result.Group.Name,
		UserID:    joiner.ID,
		Username:  joiner.DisplayName,
		Timestamp: at,
	}.WithGroup(result.Group.ID)

	errs := []error{r.deliverTo(ctx, joiner.ID, ack)}
	for _, memberID := range result.Others {
		errs = append(errs, r.deliverTo(ctx, memberID, notice))
	}
	return errors.Join(errs...)
}

// leaveGroup is a no-op for unknown groups and non-members.
func (r *Router) leaveGroup(ctx context.Context, e domain.LeaveGroup) error {
	leaver, err := r.resolveSender(e.SenderID)
	if err != nil {
		return err
	}
	result := r.groups.Leave(e.GroupID, leaver.ID)
	if !result.Left {
		r.log.Debug("Leave ignored", "group_id", e.GroupID, "user_id", leaver.ID)
		return nil
	}
	r.monitor.GroupLeft(result.Group.ID, leaver.ID, len(result.Remaining))

	at := r.stamp.Stamp()
	ack := domain.Outbound{
		Type:      domain.GroupLeft,
		GroupID:   result.Group.ID,
		GroupName: result.Group.Name,
		UserID:    leaver.ID,
		Username:  leaver.DisplayName,
		Timestamp: at,
	}
	notice := domain.Outbound{
		Type:      domain.MemberLeft,
		GroupID:   result.Group.ID,
		GroupName: result.Group.Name,
		UserID:    leaver.ID,
		Username:  leaver.DisplayName,
		Timestamp: at,
	}.WithGroup(result.Group.ID)

	errs := []error{r.deliverTo(ctx, leaver.ID, ack)}
	for _, memberID := range result.Remaining {
		errs = append(errs, r.deliverTo(ctx, memberID, notice))
	}
	if result.Deleted {
		r.log.Info("Group deleted, last member left", "group_id", result.Group.ID, "name", result.Group.Name)
		r.monitor.GroupRemoved(result.Group.ID)
	}
	return errors.Join(errs...)
}

// dispatch delivers payload to toID, or to every member but the sender when
// toID names a group. A failed delivery does not stop the others.
func (r *Router) dispatch(ctx context.Context, kind domain.RoutingKey, sender domain.User,
	toID string, payload domain.Outbound, size int) error {
	recipients := []string{toID}
	if group, ok := r.groups.Get(toID); ok {
		recipients = without(group.MemberIDs(), sender.ID)
		payload = payload.WithGroup(toID)
	}

	var errs []error
	for _, recipient := range recipients {
		if err := r.deliverTo(ctx, recipient, payload); err != nil {
			errs = append(errs, err)
			continue
		}
		r.monitor.Received(kind, recipient, sender.ID, size)
	}
	return errors.Join(errs...)
}

// deliverTo publishes payload once to the private inbox of id.
func (r *Router) deliverTo(ctx context.Context, id string, payload domain.Outbound) error {
	body, err := codec.EncodeOutbound(payload)
	if err != nil {
		return err
	}
	destination := r.naming.Inbox(id)
	if err = r.publisher.Deliver(ctx, destination, body); err != nil {
		r.log.Error("Failed to forward payload", "destination", destination, "type", payload.Type, "error", err)
		return fmt.Errorf("%w: %s: %v", routerErrors.ErrTransport, destination, err)
	}
	r.log.Debug("Forwarded payload", "destination", destination, "type", payload.Type)
	return nil
}

func (r *Router) notifyError(ctx context.Context, userID, groupID string, cause error) {
	_ = r.deliverTo(ctx, userID, domain.Outbound{
		Type:      domain.ErrorPayload,
		GroupID:   groupID,
		Error:     cause.Error(),
		Timestamp: r.stamp.Stamp(),
	})
}

func (r *Router) resolveSender(id string) (domain.User, error) {
	user, ok := r.directory.Lookup(id)
	if !ok {
		r.log.Warn("Unknown sender", "sender_id", id)
		return domain.User{}, fmt.Errorf("%w: %s", routerErrors.ErrUnknownSender, id)
	}
	return user, nil
}

// detectMIME sniffs base64 encoded content; undecodable data is reported as unknown.
func detectMIME(data string) string {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "unknown"
	}
	return mimetype.Detect(raw).String()
}

type nopMonitor struct{}

func (nopMonitor) UserRegistered(string, string)                               {}
func (nopMonitor) GroupCreated(string, string)                                 {}
func (nopMonitor) GroupJoined(string, string, int)                             {}
func (nopMonitor) GroupLeft(string, string, int)                               {}
func (nopMonitor) GroupRemoved(string)                                         {}
func (nopMonitor) Sent(domain.RoutingKey, string, string, int, map[string]any) {}
func (nopMonitor) Received(domain.RoutingKey, string, string, int)             {}
func (nopMonitor) Error(string, error, map[string]any)                         {}
func (nopMonitor) ProcessingTime(time.Duration)                                {}
