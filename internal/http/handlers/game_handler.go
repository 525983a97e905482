package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/services"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/utils"
)

// WishesResponse wraps a wish list.
type WishesResponse struct {
	Group  string               `json:"group"`
	User   string               `json:"user"`
	Wishes []services.WishEntry `json:"wishes"`
}

// ConfigResponse is a group's effective settings.
type ConfigResponse struct {
	Group  string             `json:"group"`
	Config domain.GroupConfig `json:"config"`
}

// GetHarem returns one page of a user's harem. page=0 returns everything.
//
//	GET /groups/:group/users/:user/harem?page=1
func (h *Handlers) GetHarem(c *gin.Context) {
	page := 1
	if raw := c.Query("page"); raw != "" {
		n, ok := utils.ParseDigits(raw)
		if !ok {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "page must be a non-negative integer")
			return
		}
		page = n
	}
	view, err := h.game.Harem(c.Request.Context(), c.Param("group"), c.Param("user"), page)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

// GetWishes returns a user's wish list with claim marks.
//
//	GET /groups/:group/users/:user/wishes
func (h *Handlers) GetWishes(c *gin.Context) {
	group, user := c.Param("group"), c.Param("user")
	wishes, err := h.game.Wishes(c.Request.Context(), group, user)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, WishesResponse{Group: group, User: user, Wishes: wishes})
}

// GetCharacter returns a character and its owner in the group.
//
//	GET /groups/:group/characters/:id
func (h *Handlers) GetCharacter(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be an integer")
		return
	}
	info, err := h.game.Character(c.Request.Context(), c.Param("group"), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, info)
}

// GetConfig returns the group's effective settings.
//
//	GET /groups/:group/config
func (h *Handlers) GetConfig(c *gin.Context) {
	group := c.Param("group")
	cfg, err := h.game.Config(c.Request.Context(), group)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ConfigResponse{Group: group, Config: cfg})
}

// SearchCharacters finds catalog characters by name.
//
//	GET /characters?q=keyword
func (h *Handlers) SearchCharacters(c *gin.Context) {
	res, err := h.game.Search(c.Query("q"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
