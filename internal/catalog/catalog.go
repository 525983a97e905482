// Package catalog holds the read-only character pool.
//
// A Catalog is immutable after construction and safe for concurrent use:
//
//   - Characters are ranked by heat, highest first (ties keep source order)
//   - Random picks may be restricted to the top-N ranked prefix
//   - Id lookup is O(1) through a prebuilt index
//   - Name search is a Unicode case-folded substring match
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
)

// ErrEmpty is returned when a source yields no usable characters.
var ErrEmpty = errors.New("catalog is empty")

// Option customizes a Catalog at construction.
type Option func(*Catalog)

// WithIntN overrides the random source used by Random. intN(n) must return a
// value in [0, n).
func WithIntN(intN func(n int) int) Option {
	return func(c *Catalog) {
		if intN != nil {
			c.intN = intN
		}
	}
}

// Catalog is an immutable, heat-ranked character pool.
type Catalog struct {
	chars  []domain.Character
	byID   map[int]int
	folded []string
	fold   cases.Caser
	intN   func(n int) int
}

// record mirrors one entry of the characters.json dataset.
type record struct {
	ID     *int     `json:"id"`
	Name   string   `json:"name"`
	Gender string   `json:"gender"`
	Heat   int      `json:"heat"`
	Images []string `json:"image"`
}

// New builds a Catalog from chars. Entries with duplicate ids keep the first
// occurrence.
func New(chars []domain.Character, opts ...Option) *Catalog {
	c := &Catalog{
		byID: make(map[int]int, len(chars)),
		fold: cases.Fold(),
		intN: rand.IntN,
	}
	for _, o := range opts {
		o(c)
	}

	ranked := make([]domain.Character, 0, len(chars))
	seen := make(map[int]struct{}, len(chars))
	for _, ch := range chars {
		if _, dup := seen[ch.ID]; dup {
			continue
		}
		seen[ch.ID] = struct{}{}
		ranked = append(ranked, ch)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Heat > ranked[j].Heat })

	c.chars = ranked
	c.folded = make([]string, len(ranked))
	for i, ch := range ranked {
		c.byID[ch.ID] = i
		c.folded[i] = c.fold.String(ch.Name)
	}
	return c
}

// NewFromReader decodes a JSON array of characters from r. Records without
// an id are skipped.
func NewFromReader(r io.Reader, opts ...Option) (*Catalog, error) {
	var recs []record
	if err := json.NewDecoder(r).Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return fromRecords(recs, opts...)
}

func fromRecords(recs []record, opts ...Option) (*Catalog, error) {
	chars := make([]domain.Character, 0, len(recs))
	for _, rc := range recs {
		if rc.ID == nil {
			continue
		}
		chars = append(chars, domain.Character{
			ID:     *rc.ID,
			Name:   strings.TrimSpace(rc.Name),
			Gender: domain.ParseGender(rc.Gender),
			Heat:   rc.Heat,
			Images: rc.Images,
		})
	}
	if len(chars) == 0 {
		return nil, ErrEmpty
	}
	return New(chars, opts...), nil
}

// Len returns the number of characters.
func (c *Catalog) Len() int { return len(c.chars) }

// Random returns a uniformly chosen character among the top scope entries by
// heat. scope <= 0 or larger than the pool means the whole pool. It returns
// nil when the catalog is empty.
func (c *Catalog) Random(scope int) *domain.Character {
	n := len(c.chars)
	if n == 0 {
		return nil
	}
	if scope > 0 && scope < n {
		n = scope
	}
	ch := c.chars[c.intN(n)]
	return &ch
}

// ByID returns the character with id, or nil.
func (c *Catalog) ByID(id int) *domain.Character {
	i, ok := c.byID[id]
	if !ok {
		return nil
	}
	ch := c.chars[i]
	return &ch
}

// Search returns every character whose name contains substr, ignoring case,
// in rank order. An empty or blank substr matches nothing.
func (c *Catalog) Search(substr string) []domain.Character {
	q := strings.TrimSpace(substr)
	if q == "" {
		return nil
	}
	q = c.fold.String(q)

	var out []domain.Character
	for i, name := range c.folded {
		if strings.Contains(name, q) {
			out = append(out, c.chars[i])
		}
	}
	return out
}
