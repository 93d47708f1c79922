// cache.go — LRU-кэши внешних данных с TTL: снимок каталога арендатора
// и заголовки тендеров. Обёртки над hashicorp/golang-lru/v2/expirable.
// Каждый экземпляр сервиса держит собственный in-memory кэш.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
	"github.com/bigkaa/hexabid/costing-module/internal/repository"
	"github.com/bigkaa/hexabid/costing-module/internal/tenderclient"
)

// CatalogSource — источник продуктов каталога арендатора.
type CatalogSource interface {
	ListActiveProducts(ctx context.Context, tenantID string) ([]*model.CatalogProduct, error)
}

// CatalogCache — снимки активных продуктов каталога по арендаторам.
type CatalogCache struct {
	source CatalogSource
	cache  *expirable.LRU[string, []*model.CatalogProduct]
}

// NewCatalogCache создаёт кэш каталога.
// maxTenants — максимальное количество арендаторов в кэше, ttl — время жизни снимка.
func NewCatalogCache(source CatalogSource, maxTenants int, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		source: source,
		cache:  expirable.NewLRU[string, []*model.CatalogProduct](maxTenants, nil, ttl),
	}
}

// ActiveProducts возвращает активные продукты, видимые арендатору.
// Снимок неизменяем: вызывающий не должен менять продукты.
// Ошибка чтения каталога — ErrDependencyUnavailable.
func (c *CatalogCache) ActiveProducts(ctx context.Context, tenantID string) ([]*model.CatalogProduct, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if products, ok := c.cache.Get(tenantID); ok {
		cacheHitsTotal.WithLabelValues("catalog").Inc()
		return products, nil
	}
	cacheMissesTotal.WithLabelValues("catalog").Inc()

	products, err := c.source.ListActiveProducts(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrMissingTenant) {
			return nil, ErrTenantRequired
		}
		return nil, fmt.Errorf("%w: каталог: %v", ErrDependencyUnavailable, err)
	}
	c.cache.Add(tenantID, products)
	return products, nil
}

// TenderSource — источник тендеров (подсистема тендеров).
type TenderSource interface {
	GetTender(ctx context.Context, tenantID, tenderID string) (*model.Tender, error)
}

// TenderDirectory — проверка принадлежности тендера арендатору с кэшем.
type TenderDirectory struct {
	source TenderSource
	cache  *expirable.LRU[string, *model.Tender]
}

// NewTenderDirectory создаёт справочник тендеров.
func NewTenderDirectory(source TenderSource, maxSize int, ttl time.Duration) *TenderDirectory {
	return &TenderDirectory{
		source: source,
		cache:  expirable.NewLRU[string, *model.Tender](maxSize, nil, ttl),
	}
}

func tenderKey(tenantID, tenderID string) string {
	return tenantID + "/" + tenderID
}

// Get возвращает тендер арендатора, по возможности из кэша.
// Неизвестный или чужой тендер — ErrNotFound, недоступность — ErrDependencyUnavailable.
func (d *TenderDirectory) Get(ctx context.Context, tenantID, tenderID string) (*model.Tender, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if t, ok := d.cache.Get(tenderKey(tenantID, tenderID)); ok {
		cacheHitsTotal.WithLabelValues("tender").Inc()
		return t, nil
	}
	cacheMissesTotal.WithLabelValues("tender").Inc()
	return d.GetFresh(ctx, tenantID, tenderID)
}

// GetFresh запрашивает тендер в обход кэша и обновляет кэш.
func (d *TenderDirectory) GetFresh(ctx context.Context, tenantID, tenderID string) (*model.Tender, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if tenderID == "" {
		return nil, notFound(msgTenderNotFound)
	}

	t, err := d.source.GetTender(ctx, tenantID, tenderID)
	switch {
	case errors.Is(err, tenderclient.ErrNotFound):
		d.cache.Remove(tenderKey(tenantID, tenderID))
		return nil, notFound(msgTenderNotFound)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	d.cache.Add(tenderKey(tenantID, tenderID), t)
	return t, nil
}
