// Package commands turns group chat events into game operations. It parses
// the text commands, enforces group roles, calls the services and renders
// the replies that go back to the group.
//
// Nothing here holds a group lock: services release their locks before
// returning, and replies are sent afterwards.
package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog/log"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/messaging"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/services"
)

// Canonical command names.
const (
	cmdMenu         = "菜单"
	cmdDraw         = "抽卡"
	cmdHarem        = "我的后宫"
	cmdDivorce      = "离婚"
	cmdExchange     = "交换"
	cmdFavorite     = "最爱"
	cmdWish         = "许愿"
	cmdWishList     = "愿望单"
	cmdUnwish       = "删除许愿"
	cmdQuery        = "查询"
	cmdSearch       = "搜索"
	cmdForceDivorce = "强制离婚"
	cmdClearHarem   = "清理后宫"
	cmdConfig       = "系统设置"
	cmdRefresh      = "刷新"
	cmdReset        = "终极轮回"
)

type permission int

const (
	permAnyone permission = iota
	// permAdmin admits group admins, the owner and super admins.
	permAdmin
	// permOwner admits the group owner and super admins.
	permOwner
)

// request is one parsed command invocation.
type request struct {
	Group     string
	User      string
	Name      string // sender display name
	MessageID string
	Cmd       Command
}

type handlerFunc func(ctx context.Context, r *request) (messaging.Message, error)

type handler struct {
	fn   handlerFunc
	perm permission
}

// Dispatcher routes OneBot events to the game.
type Dispatcher struct {
	Game        *services.Game
	Messenger   messaging.Messenger
	Roles       messaging.RoleResolver
	SuperAdmins map[string]struct{}
	// IntN picks among a character's images.
	IntN func(n int) int

	handlers map[string]handler
}

// New returns a Dispatcher. roles may be nil, in which case every sender
// who is not a super admin is treated as a plain member.
func New(game *services.Game, m messaging.Messenger, roles messaging.RoleResolver, superAdmins []string) *Dispatcher {
	d := &Dispatcher{
		Game:        game,
		Messenger:   m,
		Roles:       roles,
		SuperAdmins: make(map[string]struct{}, len(superAdmins)),
		IntN:        rand.IntN,
	}
	for _, id := range superAdmins {
		d.SuperAdmins[id] = struct{}{}
	}
	d.handlers = map[string]handler{
		cmdMenu:         {fn: d.menu},
		cmdDraw:         {fn: d.draw},
		cmdHarem:        {fn: d.harem},
		cmdDivorce:      {fn: d.divorce},
		cmdExchange:     {fn: d.exchange},
		cmdFavorite:     {fn: d.favorite},
		cmdWish:         {fn: d.wish},
		cmdWishList:     {fn: d.wishList},
		cmdUnwish:       {fn: d.unwish},
		cmdQuery:        {fn: d.query},
		cmdSearch:       {fn: d.search},
		cmdForceDivorce: {fn: d.forceDivorce, perm: permAdmin},
		cmdClearHarem:   {fn: d.clearHarem, perm: permAdmin},
		cmdConfig:       {fn: d.config, perm: permAdmin},
		cmdRefresh:      {fn: d.refresh, perm: permOwner},
		cmdReset:        {fn: d.reset, perm: permOwner},
	}
	return d
}

// Handle processes one event. Events produced by the bot itself and events
// outside a group are ignored; every other group event records its sender
// as a group member first.
//
// Errors are returned only for failures the sender could not be told
// about; rejected or malformed commands are answered in the group.
func (d *Dispatcher) Handle(ctx context.Context, ev messaging.Event) error {
	if ev.FromSelf() {
		return nil
	}
	group, user := ev.GroupID.String(), ev.UserID.String()
	if group == "" || user == "" {
		return nil
	}
	if !ev.IsGroupMessage() && !ev.IsReaction() {
		return nil
	}

	logger := log.Ctx(ctx).With().Str("group_id", group).Str("user_id", user).Logger()
	ctx = logger.WithContext(ctx)

	if err := d.Game.State.Touch(ctx, group, user); err != nil {
		return fmt.Errorf("touch member: %w", err)
	}
	if ev.IsReaction() {
		return d.acknowledge(ctx, group, user, ev.MessageID.String())
	}
	return d.command(ctx, ev, group, user)
}

func (d *Dispatcher) command(ctx context.Context, ev messaging.Event, group, user string) error {
	cmd, ok := Parse(ev.RawMessage, ev.SelfID.String())
	if !ok {
		return nil
	}
	h, ok := d.handlers[cmd.Name]
	if !ok {
		return nil
	}
	logger := log.Ctx(ctx).With().Str("command", cmd.Name).Logger()
	ctx = logger.WithContext(ctx)

	r := &request{
		Group:     group,
		User:      user,
		Name:      ev.DisplayName(),
		MessageID: ev.MessageID.String(),
		Cmd:       cmd,
	}

	if err := d.authorize(ctx, r, h.perm); err != nil {
		if !errors.Is(err, ErrForbidden) {
			commandsTotal.WithLabelValues(cmd.Name, "error").Inc()
			return err
		}
		commandsTotal.WithLabelValues(cmd.Name, "forbidden").Inc()
		return d.send(ctx, group, plain("无权限执行此命令。"))
	}

	reply, err := h.fn(ctx, r)
	if err != nil {
		commandsTotal.WithLabelValues(cmd.Name, "error").Inc()
		logger.Error().Err(err).Str("stage", "command").Msg("command failed")
		if sendErr := d.send(ctx, group, plain("操作失败，请稍后再试。")); sendErr != nil {
			logger.Warn().Err(sendErr).Msg("failure reply not delivered")
		}
		return err
	}
	commandsTotal.WithLabelValues(cmd.Name, "ok").Inc()
	if len(reply) == 0 {
		return nil
	}
	return d.send(ctx, group, reply)
}

// authorize checks the sender against p. Super admins pass every check
// without a role lookup.
func (d *Dispatcher) authorize(ctx context.Context, r *request, p permission) error {
	if p == permAnyone {
		return nil
	}
	if _, ok := d.SuperAdmins[r.User]; ok {
		return nil
	}
	role := messaging.RoleMember
	if d.Roles != nil {
		var err error
		role, err = d.Roles.RoleOf(ctx, r.Group, r.User)
		if err != nil {
			return fmt.Errorf("resolve role: %w", err)
		}
	}
	switch {
	case role == messaging.RoleOwner:
		return nil
	case role == messaging.RoleAdmin && p == permAdmin:
		return nil
	default:
		return ErrForbidden
	}
}

// acknowledge treats a reaction as a possible exchange acceptance.
func (d *Dispatcher) acknowledge(ctx context.Context, group, user, msgID string) error {
	if msgID == "" {
		return nil
	}
	res, err := d.Game.Exchange.Acknowledge(ctx, group, user, msgID)
	if res == nil {
		return err
	}
	reactionsTotal.WithLabelValues(ackLabel(res.Outcome)).Inc()

	switch res.Outcome {
	case services.AckSettled:
		st := res.Settlement
		return d.send(ctx, group, messaging.Message{
			messaging.Reply(st.Request.MessageID),
			messaging.At(st.Request.FromUser),
			messaging.Text(" 与 "),
			messaging.At(st.Request.ToUser),
			messaging.Text(fmt.Sprintf(" 已完成交换：%s ↔ %s", st.FromName, st.ToName)),
		})
	case services.AckFailed:
		switch {
		case errors.Is(err, services.ErrPartyLeft):
			return nil
		case errors.Is(err, services.ErrCounterpartNoLongerOwns):
			return d.send(ctx, group, plain("交换失败：对方已不再拥有该角色。"))
		case errors.Is(err, services.ErrInitiatorNoLongerOwns):
			return d.send(ctx, group, plain("交换失败：你已不再拥有该角色。"))
		case errors.Is(err, services.ErrOwnershipDrift):
			return d.send(ctx, group, plain("交换失败：有人没有对应角色。"))
		default:
			return err
		}
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, group string, msg messaging.Message) error {
	if _, err := d.Messenger.SendGroupMessage(ctx, group, msg); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("stage", "reply_send").Msg("reply not delivered")
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func ackLabel(o services.AckOutcome) string {
	switch o {
	case services.AckExpired:
		return "expired"
	case services.AckSettled:
		return "settled"
	case services.AckFailed:
		return "failed"
	default:
		return "ignored"
	}
}
