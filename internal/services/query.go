package services

import (
	"context"
	"strings"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/kv"
)

// SearchLimit caps the number of matches a search returns.
const SearchLimit = 10

// CharacterInfo is a character together with its owner in a group.
type CharacterInfo struct {
	Character domain.Character `json:"character"`
	Owner     string           `json:"owner,omitempty"`
}

// SearchResult holds the first SearchLimit matches.
type SearchResult struct {
	Matches []domain.Character `json:"matches"`
	Total   int                `json:"total"`
	More    bool               `json:"more"`
}

// QueryService answers read-only catalog questions.
type QueryService struct {
	Store   kv.Store
	Catalog Catalog
}

// NewQueryService constructs a QueryService.
func NewQueryService(store kv.Store, cat Catalog) *QueryService {
	return &QueryService{Store: store, Catalog: cat}
}

// Character looks up id and its owner in group.
func (s *QueryService) Character(ctx context.Context, group string, id int) (*CharacterInfo, error) {
	ch := s.Catalog.ByID(id)
	if ch == nil {
		return nil, ErrCharacterNotFound
	}
	owner, err := ownerOf(ctx, s.Store, normalizeGroup(group), cid(id))
	if err != nil {
		return nil, err
	}
	return &CharacterInfo{Character: *ch, Owner: owner}, nil
}

// Search returns characters whose name contains keyword, ignoring case.
func (s *QueryService) Search(keyword string) (*SearchResult, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, ErrInvalidArgument
	}
	all := s.Catalog.Search(keyword)
	res := &SearchResult{Total: len(all), Matches: all}
	if len(all) > SearchLimit {
		res.Matches = all[:SearchLimit]
		res.More = true
	}
	if res.Matches == nil {
		res.Matches = []domain.Character{}
	}
	return res, nil
}
