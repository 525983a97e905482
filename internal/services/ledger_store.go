package services

import (
	"context"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/kv"
)

// Low-level ledger accessors shared by the draw, ledger, wish and exchange
// services. Compound read-modify-write sequences built from these must run
// under the group lock (draws excepted).

func ownerOf(ctx context.Context, s kv.Store, g, c string) (string, error) {
	return kv.Load(ctx, s, marriedToKey(g, c), "")
}

func setOwner(ctx context.Context, s kv.Store, g, c, u string) error {
	return kv.Save(ctx, s, marriedToKey(g, c), u)
}

func clearOwner(ctx context.Context, s kv.Store, g, c string) error {
	return kv.Remove(ctx, s, marriedToKey(g, c))
}

// releaseOwner clears c's owner pointer only when it still names u, so a
// stale list entry can never unseat the current owner.
func releaseOwner(ctx context.Context, s kv.Store, g, c, u string) error {
	owner, err := ownerOf(ctx, s, g, c)
	if err != nil {
		return err
	}
	if owner != "" && owner != u {
		return nil
	}
	return clearOwner(ctx, s, g, c)
}

func loadList(ctx context.Context, s kv.Store, key string) ([]string, error) {
	return kv.Load(ctx, s, key, []string{})
}

// saveList stores list under key; an empty list deletes the key.
func saveList(ctx context.Context, s kv.Store, key string, list []string) error {
	if len(list) == 0 {
		return kv.Remove(ctx, s, key)
	}
	return kv.Save(ctx, s, key, list)
}

func partnersOf(ctx context.Context, s kv.Store, g, u string) ([]string, error) {
	return loadList(ctx, s, partnersKey(g, u))
}

func favoriteOf(ctx context.Context, s kv.Store, g, u string) (string, error) {
	return kv.Load(ctx, s, favKey(g, u), "")
}

// repairFavorite deletes u's favorite when it is not in partners. Every
// mutation that can shrink or replace a harem list ends with this call.
func repairFavorite(ctx context.Context, s kv.Store, g, u string, partners []string) error {
	fav, err := favoriteOf(ctx, s, g, u)
	if err != nil {
		return err
	}
	if fav == "" || contains(partners, fav) {
		return nil
	}
	return kv.Remove(ctx, s, favKey(g, u))
}
