package wallet

import (
	"context"

	"escrow-service/internal/domain"
)

// Cache is the read-through layer for wallet rows. Implementations must
// tolerate being unavailable; a failed read is a miss.
//
// Generation is read before loading a row from the store and handed to Put,
// which drops the write if an Invalidate happened in between.
type Cache interface {
	Get(ctx context.Context, walletID string) (*domain.Wallet, bool)
	GetIDByOwner(ctx context.Context, ownerID string) (string, bool)
	Generation(ctx context.Context, walletID string) int64
	Put(ctx context.Context, w *domain.Wallet, gen int64)
	Invalidate(ctx context.Context, walletIDs ...string)
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (*domain.Wallet, bool) { return nil, false }
func (noopCache) GetIDByOwner(context.Context, string) (string, bool) { return "", false }
func (noopCache) Generation(context.Context, string) int64 { return -1 }
func (noopCache) Put(context.Context, *domain.Wallet, int64) {}
func (noopCache) Invalidate(context.Context, ...string) {}
