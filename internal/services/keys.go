package services

import (
	"strconv"
	"strings"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
)

// Key layout. Every key is scoped by group id; see normalizeGroup.
func configKey(g string) string         { return g + ":config" }
func userListKey(g string) string       { return g + ":user_list" }
func lastDrawKey(g string) string       { return g + ":last_draw" }
func exchangeIndexKey(g string) string  { return g + ":exchange_req_index" }
func drawStatusKey(g, u string) string  { return g + ":" + u + ":draw_status" }
func partnersKey(g, u string) string    { return g + ":" + u + ":partners" }
func favKey(g, u string) string         { return g + ":" + u + ":fav" }
func wishListKey(g, u string) string    { return g + ":" + u + ":wish_list" }
func marriedToKey(g, c string) string   { return g + ":" + c + ":married_to" }
func wishedByKey(g, c string) string    { return g + ":" + c + ":wished_by" }
func exchangeReqKey(g, m string) string { return g + ":exchange_req:" + m }

// normalizeGroup maps an empty group id to the global scope.
func normalizeGroup(g string) string {
	g = strings.TrimSpace(g)
	if g == "" {
		return domain.GlobalGroup
	}
	return g
}

func cid(id int) string { return strconv.Itoa(id) }

func atoi(s string) (int, error) { return strconv.Atoi(s) }

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// without returns list minus every occurrence of v, in a new slice.
func without(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
