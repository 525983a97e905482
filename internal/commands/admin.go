package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/messaging"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/services"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/utils"
)

const resetConfirm = "确认"

// settingSpec binds a chat-facing setting name to its service setting.
type settingSpec struct {
	setting   services.Setting
	usage     string
	tooLarge  string
	applied   func(v int) string
	menuLabel string
}

var settings = map[string]settingSpec{
	"抽卡冷却": {
		setting:   services.SettingDrawCooldown,
		usage:     "用法：抽卡冷却 [0~600](秒)",
		tooLarge:  "时间不能超过600秒",
		applied:   func(v int) string { return fmt.Sprintf("抽卡冷却已设置为%d秒", v) },
		menuLabel: "抽卡冷却（秒）",
	},
	"抽卡次数": {
		setting:   services.SettingDrawHourlyLimit,
		usage:     "用法：抽卡次数 [1~10]",
		tooLarge:  "次数不能超过10次",
		applied:   func(v int) string { return fmt.Sprintf("每小时抽卡次数已设置为%d次", v) },
		menuLabel: "每小时抽卡次数",
	},
	"后宫上限": {
		setting:   services.SettingHaremMaxSize,
		usage:     "用法：后宫上限 [5~50]",
		applied:   func(v int) string { return fmt.Sprintf("后宫上限已设置为%d", v) },
		menuLabel: "后宫人数上限",
	},
	"抽卡范围": {
		setting:   services.SettingDrawScope,
		usage:     "用法：抽卡范围 [5000~20000]",
		applied:   func(v int) string { return fmt.Sprintf("抽卡范围已设置为热度前%d", v) },
		menuLabel: "抽卡热度范围",
	},
}

func (d *Dispatcher) forceDivorce(ctx context.Context, r *request) (messaging.Message, error) {
	id, ok := utils.ParseDigits(r.Cmd.Arg(0))
	if !ok {
		return plain("用法：强制离婚 <角色ID>"), nil
	}
	if _, err := d.Game.Ledger.ForceDivorce(ctx, r.Group, id); err != nil {
		return nil, err
	}
	return plain(d.charName(id) + " 已被强制解除婚约。"), nil
}

func (d *Dispatcher) clearHarem(ctx context.Context, r *request) (messaging.Message, error) {
	target := strings.TrimSpace(r.Cmd.Arg(0))
	if _, ok := utils.ParseDigits(target); !ok {
		return plain("用法：清理后宫 <QQ号>"), nil
	}
	res, err := d.Game.Ledger.ClearHarem(ctx, r.Group, target)
	if err != nil {
		return nil, err
	}
	if res.Released == 0 && res.Kept == "" {
		return plain(target + " 的后宫为空"), nil
	}
	return plain("已清理 " + target + " 的后宫"), nil
}

func (d *Dispatcher) config(ctx context.Context, r *request) (messaging.Message, error) {
	name := strings.TrimSpace(r.Cmd.Arg(0))
	spec, ok := settings[name]
	if !ok {
		return d.configMenu(ctx, r)
	}

	value, ok := utils.ParseDigits(r.Cmd.Arg(1))
	if !ok {
		return plain(spec.usage), nil
	}
	applied, err := d.Game.Admin.SetConfig(ctx, r.Group, spec.setting, value)
	if errors.Is(err, services.ErrValueOutOfRange) {
		return plain(spec.tooLarge), nil
	}
	if err != nil {
		return nil, err
	}
	return plain(spec.applied(applied)), nil
}

func (d *Dispatcher) configMenu(ctx context.Context, r *request) (messaging.Message, error) {
	cfg, err := d.Game.Admin.Config(ctx, r.Group)
	if err != nil {
		return nil, err
	}
	scope := "无"
	if cfg.DrawScope > 0 {
		scope = strconv.Itoa(cfg.DrawScope)
	}
	lines := []string{
		"用法：",
		fmt.Sprintf("系统设置 抽卡冷却 [0~%d]", services.MaxDrawCooldown),
		fmt.Sprintf("———%s | 当前值: %d", settings["抽卡冷却"].menuLabel, cfg.DrawCooldown),
		fmt.Sprintf("系统设置 抽卡次数 [%d~%d]", services.MinDrawHourlyLimit, services.MaxDrawHourlyLimit),
		fmt.Sprintf("———%s | 当前值: %d", settings["抽卡次数"].menuLabel, cfg.DrawHourlyLimit),
		fmt.Sprintf("系统设置 后宫上限 [%d~%d]", services.MinHaremMaxSize, services.MaxHaremMaxSize),
		fmt.Sprintf("———%s | 当前值: %d", settings["后宫上限"].menuLabel, cfg.HaremMaxSize),
		fmt.Sprintf("系统设置 抽卡范围 [%d~%d]", services.MinDrawScope, services.MaxDrawScope),
		fmt.Sprintf("———%s | 当前值: %s", settings["抽卡范围"].menuLabel, scope),
	}
	return plain(strings.Join(lines, "\n")), nil
}

func (d *Dispatcher) refresh(ctx context.Context, r *request) (messaging.Message, error) {
	target := strings.TrimSpace(r.Cmd.Arg(0))
	if target == "" {
		return plain("用法：刷新 <QQ号>"), nil
	}
	if err := d.Game.Admin.Refresh(ctx, r.Group, target); err != nil {
		return nil, err
	}
	return plain("次数已重置"), nil
}

func (d *Dispatcher) reset(ctx context.Context, r *request) (messaging.Message, error) {
	if r.Cmd.Arg(0) != resetConfirm {
		return plain("确定要进行终极轮回吗？此操作将清除本群所有角色婚姻信息（除了最爱角色）。\n如果确定要执行，请使用“终极轮回 确认”"), nil
	}
	if _, err := d.Game.Ledger.MassReset(ctx, r.Group); err != nil {
		return nil, err
	}
	return plain("已清除本群所有角色婚姻信息"), nil
}
