package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/ldhieu/seckill/internal/cache"
	"github.com/ldhieu/seckill/internal/core/domain"
	"github.com/ldhieu/seckill/internal/port"
)

var ErrShopNotFound = errors.New("shop not found")

// ShopService serves shops through the cache client. Reads go through the
// mutex breakdown guard; writes update the durable store first and then
// evict the cached entry.
type ShopService struct {
	cache *cache.Client[domain.Shop]
	store port.ShopRepository
}

func NewShopService(cache *cache.Client[domain.Shop], store port.ShopRepository) *ShopService {
	return &ShopService{cache: cache, store: store}
}

func (s *ShopService) GetByID(ctx context.Context, shopID int64) (*domain.Shop, error) {
	shop, err := s.cache.GetWithMutex(ctx, strconv.FormatInt(shopID, 10), s.load)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, ErrShopNotFound
	}
	return shop, nil
}

func (s *ShopService) Update(ctx context.Context, shop domain.Shop) error {
	if shop.ID == 0 {
		return ErrShopNotFound
	}
	if err := s.store.UpdateShop(ctx, shop); err != nil {
		return err
	}
	return s.cache.Delete(ctx, strconv.FormatInt(shop.ID, 10))
}

func (s *ShopService) load(ctx context.Context, id string) (*domain.Shop, error) {
	shopID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, err
	}
	return s.store.GetShop(ctx, shopID)
}
