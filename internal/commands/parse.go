package commands

import (
	"regexp"
	"strings"
)

// Command is a parsed chat command: its canonical name and arguments.
type Command struct {
	Name string
	Args []string
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// aliases maps alternative spellings onto canonical command names.
var aliases = map[string]string{
	"帮助": cmdMenu,
	"ck": cmdDraw,
	"CK": cmdDraw,
}

// cqCode matches a CQ code such as [CQ:at,qq=123] in OneBot raw messages.
var cqCode = regexp.MustCompile(`\[CQ:([A-Za-z_]+)((?:,[^\]]*)?)\]`)

var cqUnescape = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&#44;", ",", "&amp;", "&")

// Parse extracts a command from a raw group message. Mentions are replaced
// by the mentioned user id, except mentions of the bot itself (selfID),
// which are dropped along with every other CQ code. A leading "/" is
// accepted. ok is false for an empty message.
func Parse(raw, selfID string) (cmd Command, ok bool) {
	text := cqCode.ReplaceAllStringFunc(raw, func(code string) string {
		m := cqCode.FindStringSubmatch(code)
		if m[1] != "at" {
			return " "
		}
		qq := cqParam(m[2], "qq")
		if qq == "" || qq == selfID || qq == "all" {
			return " "
		}
		return " " + qq + " "
	})
	text = cqUnescape.Replace(text)

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{}, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if name == "" {
		return Command{}, false
	}
	if canon, ok := aliases[name]; ok {
		name = canon
	}
	return Command{Name: name, Args: fields[1:]}, true
}

func cqParam(params, key string) string {
	for _, kv := range strings.Split(params, ",") {
		k, v, found := strings.Cut(kv, "=")
		if found && k == key {
			return v
		}
	}
	return ""
}
