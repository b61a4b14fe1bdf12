package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"escrow-service/internal/domain"
	sharedcache "escrow-service/shared/utils/cache"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	nsWallet      = "escrow:wallet"
	nsWalletGen   = "escrow:wallet_gen"
	nsWalletOwner = "escrow:wallet_owner"
)

var errStaleWrite = errors.New("wallet generation moved")

// WalletCache is a cache-aside layer for wallet reads. The store stays the
// source of truth; entries are dropped after every committed balance change.
//
// Every Invalidate bumps a per-wallet generation. Readers take the generation
// before loading the row and Put refuses to write once it has moved, so a slow
// reader can not park a balance older than the last invalidation.
type WalletCache struct {
	rdb    redis.UniversalClient
	c      *sharedcache.Cache
	ttl    time.Duration
	genTTL time.Duration
	logger *zap.Logger
}

func NewWalletCache(rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *WalletCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &WalletCache{rdb: rdb, c: sharedcache.New(rdb), ttl: ttl, genTTL: 24 * time.Hour, logger: logger}
}

// slot keeps entry and generation keys on one cluster slot for WATCH.
func slot(walletID string) string { return "{" + walletID + "}" }

func genKey(walletID string) string { return nsWalletGen + ":" + slot(walletID) }

func (wc *WalletCache) Get(ctx context.Context, walletID string) (*domain.Wallet, bool) {
	var w domain.Wallet
	if err := wc.c.GetJSON(ctx, nsWallet, slot(walletID), &w); err != nil {
		if !errors.Is(err, redis.Nil) {
			wc.logger.Debug("wallet cache read failed", zap.String("wallet_id", walletID), zap.Error(err))
		}
		return nil, false
	}
	return &w, true
}

func (wc *WalletCache) GetIDByOwner(ctx context.Context, ownerID string) (string, bool) {
	id, err := wc.c.Get(ctx, nsWalletOwner, ownerID)
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

// Generation returns the wallet's current generation, or -1 when redis can
// not answer. Put never writes with a negative generation.
func (wc *WalletCache) Generation(ctx context.Context, walletID string) int64 {
	g, err := wc.rdb.Get(ctx, genKey(walletID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	if err != nil {
		return -1
	}
	return g
}

// Put stores w if no invalidation happened since gen was read.
func (wc *WalletCache) Put(ctx context.Context, w *domain.Wallet, gen int64) {
	// owner mapping never changes
	_ = wc.c.Set(ctx, nsWalletOwner, w.OwnerID, w.ID, 0)
	if gen < 0 {
		return
	}
	data, err := json.Marshal(w)
	if err != nil {
		return
	}

	key := genKey(w.ID)
	err = wc.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleWrite
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, nsWallet+":"+slot(w.ID), data, wc.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
	case errors.Is(err, errStaleWrite), errors.Is(err, redis.TxFailedErr):
		wc.logger.Debug("skipped stale wallet cache write", zap.String("wallet_id", w.ID), zap.Int64("version", w.Version))
	default:
		wc.logger.Debug("wallet cache write failed", zap.String("wallet_id", w.ID), zap.Error(err))
	}
}

func (wc *WalletCache) Invalidate(ctx context.Context, walletIDs ...string) {
	if len(walletIDs) == 0 {
		return
	}
	_, err := wc.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range walletIDs {
			p.Incr(ctx, genKey(id))
			p.Expire(ctx, genKey(id), wc.genTTL)
			p.Del(ctx, nsWallet+":"+slot(id))
		}
		return nil
	})
	if err != nil {
		wc.logger.Warn("wallet cache invalidation failed", zap.Strings("wallet_ids", walletIDs), zap.Error(err))
	}
}
