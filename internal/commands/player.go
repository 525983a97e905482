package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/messaging"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/services"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/utils"
)

var menuText = strings.Join([]string{
	"普通指令：",
	"菜单/帮助",
	"抽卡/ck",
	"离婚 <角色ID>",
	"最爱 <角色ID>",
	"查询 <角色ID>",
	"搜索 <角色名称>",
	"我的后宫",
	"我的后宫 <页码>",
	"交换 <我的角色ID> <对方角色ID>",
	"许愿 <角色ID>",
	"愿望单",
	"删除许愿 <角色ID>",
	"================================",
	"管理员指令：",
	"系统设置 <功能> <参数>",
	"清理后宫 <QQ号>",
	"强制离婚 <角色ID>",
	"================================",
	"群主/超管指令：",
	"刷新 <QQ号>",
	"终极轮回",
}, "\n")

func (d *Dispatcher) menu(context.Context, *request) (messaging.Message, error) {
	return plain(menuText), nil
}

// draw runs a draw. The announcement itself is sent by the draw service;
// this only renders the follow-up.
func (d *Dispatcher) draw(ctx context.Context, r *request) (messaging.Message, error) {
	res, err := d.Game.Draw.Draw(ctx, r.Group, r.User)
	switch {
	case errors.Is(err, services.ErrCatalogUnavailable):
		return plain("卡池数据未加载"), nil
	case errors.Is(err, services.ErrDeliveryFailed):
		// Nothing was consumed and the chat is unreachable anyway.
		return nil, nil
	case err != nil:
		return nil, err
	}

	switch res.Outcome {
	case services.DrawThrottled:
		return messaging.Message{
			messaging.At(r.User),
			messaging.Text(fmt.Sprintf(" 抽卡冷却中，还需等待 %d 秒", res.Wait)),
		}, nil
	case services.DrawLimitReached:
		if !res.Notify {
			return nil, nil
		}
		return messaging.Message{messaging.At(r.User), messaging.Text("\u200b\n⚠本小时已达上限⚠")}, nil
	case services.DrawGranted:
		return messaging.Message{
			messaging.Text(fmt.Sprintf("🎉 %s 是 ", res.Character.Name)),
			messaging.At(r.User),
			messaging.Text(fmt.Sprintf(" 的%s了！🎉", spouseTitle(res.Character.Gender))),
		}, nil
	case services.DrawHaremFull:
		return messaging.Message{
			messaging.At(r.User),
			messaging.Text(fmt.Sprintf(" 你的后宫已满%d，无法再获得新角色。", res.HaremMax)),
		}, nil
	default:
		return nil, nil
	}
}

func (d *Dispatcher) harem(ctx context.Context, r *request) (messaging.Message, error) {
	page := max(utils.AtoiDefault(r.Cmd.Arg(0), 0), 0)
	view, err := d.Game.Ledger.Harem(ctx, r.Group, r.User, page)
	if err != nil {
		return nil, err
	}
	if view.Total == 0 {
		return quoted(r, messaging.At(r.User), messaging.Text("，你的后宫空空如也。")), nil
	}

	lines := make([]string, len(view.Entries))
	for i, e := range view.Entries {
		mark := ""
		if e.Favorite {
			mark = "⭐"
		}
		lines[i] = fmt.Sprintf("%s%s (ID: %d)", mark, e.Character.Name, e.Character.ID)
	}

	var msg messaging.Message
	if page == 0 {
		if img, ok := d.image(view.Favorite); ok {
			msg = append(msg, img)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s的后宫\n总人气: %d", r.Name, view.TotalHeat)
		for start := 0; start < len(lines); start += services.HaremPageSize {
			end := min(start+services.HaremPageSize, len(lines))
			b.WriteString("\n\n")
			b.WriteString(strings.Join(lines[start:end], "\n"))
		}
		return append(msg, messaging.Text(b.String())), nil
	}

	msg = quoted(r)
	if img, ok := d.image(view.Favorite); ok {
		msg = append(msg, img)
	}
	body := fmt.Sprintf("阵容总人气: %d\n%s\n(第%d/%d页)", view.TotalHeat, strings.Join(lines, "\n"), view.Page, view.TotalPages)
	return append(msg, messaging.Text(body)), nil
}

func (d *Dispatcher) divorce(ctx context.Context, r *request) (messaging.Message, error) {
	id, ok := utils.ParseDigits(r.Cmd.Arg(0))
	if !ok {
		return plain("用法：离婚 <角色ID>"), nil
	}
	err := d.Game.Ledger.Divorce(ctx, r.Group, r.User, id)
	if errors.Is(err, services.ErrNotOwned) {
		return quoted(r, messaging.Text("结了吗你就离？")), nil
	}
	if err != nil {
		return nil, err
	}
	return quoted(r, messaging.At(r.User), messaging.Text(fmt.Sprintf("已与 %s 离婚。", d.charName(id)))), nil
}

// exchange proposes a trade. On success the proposal announcement is the
// only message; there is no separate reply.
func (d *Dispatcher) exchange(ctx context.Context, r *request) (messaging.Message, error) {
	mine, ok1 := utils.ParseDigits(r.Cmd.Arg(0))
	theirs, ok2 := utils.ParseDigits(r.Cmd.Arg(1))
	if !ok1 || !ok2 {
		return plain("用法：交换 <我的角色ID> <对方角色ID>"), nil
	}

	_, err := d.Game.Exchange.Propose(ctx, r.Group, r.User, mine, theirs, r.MessageID)
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, services.ErrNotYourCharacter):
		return plain("你并未与该角色结婚，无法交换。"), nil
	case errors.Is(err, services.ErrCounterpartNotOwned):
		return plain("对方角色未婚，无法交换。"), nil
	case errors.Is(err, services.ErrCounterpartLeft):
		return plain("对方角色已不在本群，无法交换。"), nil
	case errors.Is(err, services.ErrDeliveryFailed):
		return plain("发送交换请求失败，请稍后再试。"), nil
	default:
		return nil, err
	}
}

func (d *Dispatcher) favorite(ctx context.Context, r *request) (messaging.Message, error) {
	id, ok := utils.ParseDigits(r.Cmd.Arg(0))
	if !ok {
		return plain("用法：最爱 <角色ID>"), nil
	}
	err := d.Game.Ledger.Favorite(ctx, r.Group, r.User, id)
	if errors.Is(err, services.ErrNotOwned) {
		return plain("你尚未与该角色结婚！"), nil
	}
	if err != nil {
		return nil, err
	}
	return quoted(r, messaging.Text(fmt.Sprintf("已将 %s 设为你的最爱。", d.charName(id)))), nil
}

func (d *Dispatcher) wish(ctx context.Context, r *request) (messaging.Message, error) {
	id, ok := utils.ParseDigits(r.Cmd.Arg(0))
	if !ok {
		return plain("用法：许愿 <角色ID>"), nil
	}
	ch, err := d.Game.Wish.Wish(ctx, r.Group, r.User, id)
	switch {
	case errors.Is(err, services.ErrCharacterNotFound):
		return plain(fmt.Sprintf("未找到ID为 %d 的角色", id)), nil
	case errors.Is(err, services.ErrWishListFull):
		return quoted(r, messaging.Text("愿望单已满")), nil
	case err != nil:
		return nil, err
	}
	return quoted(r, messaging.Text("已许愿 "+ch.Name)), nil
}

func (d *Dispatcher) wishList(ctx context.Context, r *request) (messaging.Message, error) {
	entries, err := d.Game.Wish.Wishes(ctx, r.Group, r.User)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return quoted(r, messaging.At(r.User), messaging.Text("你的愿望单为空")), nil
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		line := fmt.Sprintf("%s(ID: %d)", e.Character.Name, e.Character.ID)
		switch e.Mark {
		case services.WishMine:
			line += "❤️"
		case services.WishTaken:
			line += "💔"
		}
		lines[i] = line
	}
	return quoted(r, messaging.Text(strings.Join(lines, "\n"))), nil
}

func (d *Dispatcher) unwish(ctx context.Context, r *request) (messaging.Message, error) {
	id, ok := utils.ParseDigits(r.Cmd.Arg(0))
	if !ok {
		return plain("用法：删除许愿 <角色ID>"), nil
	}
	if err := d.Game.Wish.Unwish(ctx, r.Group, r.User, id); err != nil {
		return nil, err
	}
	return quoted(r, messaging.Text("已从愿望单移除")), nil
}

// query shows a character by id; a non-numeric argument is treated as a
// search keyword.
func (d *Dispatcher) query(ctx context.Context, r *request) (messaging.Message, error) {
	arg := strings.TrimSpace(strings.Join(r.Cmd.Args, " "))
	if arg == "" {
		return plain("用法：查询 <角色ID>"), nil
	}
	id, ok := utils.ParseDigits(arg)
	if !ok {
		return d.searchKeyword(ctx, r, arg)
	}
	info, err := d.Game.Query.Character(ctx, r.Group, id)
	if errors.Is(err, services.ErrCharacterNotFound) {
		return plain("未找到ID为 " + strconv.Itoa(id) + " 的角色"), nil
	}
	if err != nil {
		return nil, err
	}
	return d.characterInfo(info), nil
}

func (d *Dispatcher) search(ctx context.Context, r *request) (messaging.Message, error) {
	kw := strings.TrimSpace(strings.Join(r.Cmd.Args, " "))
	if kw == "" {
		return plain("用法：搜索 <角色名字/部分名字>"), nil
	}
	return d.searchKeyword(ctx, r, kw)
}

func (d *Dispatcher) searchKeyword(ctx context.Context, r *request, kw string) (messaging.Message, error) {
	res, err := d.Game.Query.Search(kw)
	if err != nil {
		return nil, err
	}
	switch len(res.Matches) {
	case 0:
		return plain(fmt.Sprintf("未找到名称包含“%s”的角色", kw)), nil
	case 1:
		info, err := d.Game.Query.Character(ctx, r.Group, res.Matches[0].ID)
		if err != nil {
			return nil, err
		}
		return d.characterInfo(info), nil
	}

	lines := make([]string, len(res.Matches))
	for i, ch := range res.Matches {
		lines[i] = fmt.Sprintf("%s (ID: %d)", ch.Name, ch.ID)
	}
	text := strings.Join(lines, "\n")
	if res.More {
		text += "\n..."
	}
	log.Ctx(ctx).Debug().Str("keyword", kw).Int("total", res.Total).Msg("search")
	return plain(text), nil
}
