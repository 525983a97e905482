package commands

import (
	"fmt"
	"strconv"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/messaging"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/services"
)

func plain(s string) messaging.Message {
	return messaging.Message{messaging.Text(s)}
}

// quoted prefixes segs with a reply to the command message when it has an
// id.
func quoted(r *request, segs ...messaging.Segment) messaging.Message {
	msg := make(messaging.Message, 0, len(segs)+1)
	if r.MessageID != "" {
		msg = append(msg, messaging.Reply(r.MessageID))
	}
	return append(msg, segs...)
}

func genderMark(g domain.Gender) string {
	switch g {
	case domain.GenderMale:
		return "♂"
	case domain.GenderFemale:
		return "♀"
	default:
		return "❓"
	}
}

// spouseTitle is the word used when a draw grants a character.
func spouseTitle(g domain.Gender) string {
	switch g {
	case domain.GenderMale:
		return "老公"
	case domain.GenderFemale:
		return "老婆"
	default:
		return ""
	}
}

// charName resolves id to its catalog name, falling back to the id.
func (d *Dispatcher) charName(id int) string {
	if ch := d.Game.Query.Catalog.ByID(id); ch != nil && ch.Name != "" {
		return ch.Name
	}
	return strconv.Itoa(id)
}

func (d *Dispatcher) image(ch *domain.Character) (messaging.Segment, bool) {
	if ch == nil || len(ch.Images) == 0 {
		return messaging.Segment{}, false
	}
	return messaging.Image(ch.Images[d.IntN(len(ch.Images))]), true
}

// characterInfo renders the card shown by 查询 and single-hit searches.
func (d *Dispatcher) characterInfo(info *services.CharacterInfo) messaging.Message {
	ch := info.Character
	msg := messaging.Message{
		messaging.Text(fmt.Sprintf("ID: %d\n%s\n%s\n热度: %d", ch.ID, ch.Name, genderMark(ch.Gender), ch.Heat)),
	}
	if img, ok := d.image(&ch); ok {
		msg = append(msg, img)
	}
	if info.Owner != "" {
		msg = append(msg,
			messaging.Text("❤已与 "),
			messaging.At(info.Owner),
			messaging.Text("结婚❤"),
		)
	}
	return msg
}
