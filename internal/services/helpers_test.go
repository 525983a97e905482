package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/catalog"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/events"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/kv"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/messaging"
)

// ---------- fakes ----------

type sentMsg struct {
	group string
	id    string
	msg   messaging.Message
}

type fakeMessenger struct {
	mu   sync.Mutex
	seq  int
	sent []sentMsg
	fail error
}

func (f *fakeMessenger) SendGroupMessage(_ context.Context, group string, msg messaging.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.seq++
	id := "m" + strconv.Itoa(f.seq)
	f.sent = append(f.sent, sentMsg{group: group, id: id, msg: msg})
	return id, nil
}

func (f *fakeMessenger) last() sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMsg{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeMessenger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recordingPublisher) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type failingStore struct {
	kv.Store
	err error
}

func (f failingStore) Get(context.Context, string) ([]byte, error) { return nil, f.err }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// ---------- fixture ----------

// Ranked order is 101, 202, 303, 404, 505.
var testChars = []domain.Character{
	{ID: 101, Name: "Saber", Gender: domain.GenderFemale, Heat: 500, Images: []string{"saber.png"}},
	{ID: 202, Name: "Archer", Gender: domain.GenderMale, Heat: 400},
	{ID: 303, Name: "Rin", Gender: domain.GenderFemale, Heat: 300},
	{ID: 404, Name: "Shirou", Gender: domain.GenderMale, Heat: 200},
	{ID: 505, Name: "Illya", Gender: domain.GenderFemale, Heat: 100},
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *kv.MemoryStore
	msgr   *fakeMessenger
	pub    *recordingPublisher
	clock  *clock
	game   *Game
	pickAt int // ranked index the catalog returns next
}

func newFixture(t *testing.T, defaults domain.GroupConfig) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: kv.NewMemoryStore(),
		msgr:  &fakeMessenger{},
		pub:   &recordingPublisher{},
		clock: &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
	cat := catalog.New(testChars, catalog.WithIntN(func(n int) int { return f.pickAt % n }))
	f.game = NewGame(f.store, cat, f.msgr, f.pub, GameOptions{Defaults: defaults, Location: time.UTC})

	f.game.Draw.Now = f.clock.now
	f.game.Draw.Float64 = func() float64 { return 0.5 }
	f.game.Draw.IntN = func(int) int { return 0 }
	f.game.Ledger.Now = f.clock.now
	f.game.Exchange.Now = f.clock.now
	return f
}

func (f *fixture) join(group string, users ...string) {
	f.t.Helper()
	for _, u := range users {
		if err := f.game.State.Touch(f.ctx, group, u); err != nil {
			f.t.Fatalf("touch %s: %v", u, err)
		}
	}
}

// own gives user the characters directly, bypassing draws.
func (f *fixture) own(group, user string, chars ...int) {
	f.t.Helper()
	partners, _ := partnersOf(f.ctx, f.store, group, user)
	for _, c := range chars {
		s := cid(c)
		if !contains(partners, s) {
			partners = append(partners, s)
		}
		if err := setOwner(f.ctx, f.store, group, s, user); err != nil {
			f.t.Fatal(err)
		}
	}
	if err := saveList(f.ctx, f.store, partnersKey(group, user), partners); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) setFav(group, user string, char int) {
	f.t.Helper()
	if err := kv.Save(f.ctx, f.store, favKey(group, user), cid(char)); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) partners(group, user string) []string {
	f.t.Helper()
	p, err := partnersOf(f.ctx, f.store, group, user)
	if err != nil {
		f.t.Fatal(err)
	}
	return p
}

func (f *fixture) owner(group string, char int) string {
	f.t.Helper()
	o, err := ownerOf(f.ctx, f.store, group, cid(char))
	if err != nil {
		f.t.Fatal(err)
	}
	return o
}

func (f *fixture) fav(group, user string) string {
	f.t.Helper()
	v, err := favoriteOf(f.ctx, f.store, group, user)
	if err != nil {
		f.t.Fatal(err)
	}
	return v
}

func (f *fixture) has(key string) bool {
	_, err := f.store.Get(f.ctx, key)
	return !errors.Is(err, kv.ErrNotFound)
}

func equalList(a []string, b ...string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// checkInvariants asserts ownership uniqueness, favorite validity and wish
// symmetry for every member of group.
func (f *fixture) checkInvariants(group string) {
	f.t.Helper()
	members, _ := f.game.State.Members(f.ctx, group)
	holders := map[string][]string{}
	for _, u := range members {
		p := f.partners(group, u)
		for _, c := range p {
			holders[c] = append(holders[c], u)
		}
		if fav := f.fav(group, u); fav != "" && !contains(p, fav) {
			f.t.Fatalf("favorite %s of %s not in harem %v", fav, u, p)
		}
		wishes, _ := loadList(f.ctx, f.store, wishListKey(group, u))
		for _, c := range wishes {
			wishers, _ := loadList(f.ctx, f.store, wishedByKey(group, c))
			if !contains(wishers, u) {
				f.t.Fatalf("wish %s of %s missing reverse entry", c, u)
			}
		}
	}
	for c, us := range holders {
		if len(us) > 1 {
			f.t.Fatalf("character %s held by %v", c, us)
		}
		id, _ := strconv.Atoi(c)
		if o := f.owner(group, id); o != us[0] {
			f.t.Fatalf("character %s listed by %s but owner pointer is %q", c, us[0], o)
		}
	}
}
