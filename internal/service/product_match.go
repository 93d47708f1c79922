// product_match.go — подбор продуктов каталога арендатора по описанию позиции.
package service

import (
	"context"
	"strings"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/matching"
)

// ProductMatchService — подбор поверх кэша каталога. Состояние не меняет.
type ProductMatchService struct {
	catalog *CatalogCache
	matcher matching.Matcher
	limit   int
}

// NewProductMatchService создаёт сервис подбора.
// limit — верхняя граница длины результата.
func NewProductMatchService(catalog *CatalogCache, matcher matching.Matcher, limit int) *ProductMatchService {
	return &ProductMatchService{catalog: catalog, matcher: matcher, limit: limit}
}

// Match возвращает кандидатов каталога, упорядоченных по уверенности.
// limit <= 0 или больше настроенного — используется настроенный.
func (s *ProductMatchService) Match(ctx context.Context, tenantID string, q matching.Query, limit int) ([]matching.Result, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.Description) == "" {
		return nil, validationf("описание для подбора обязательно")
	}
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}

	products, err := s.catalog.ActiveProducts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	results := s.matcher.Match(q, products, limit)
	if results == nil {
		results = []matching.Result{}
	}
	return results, nil
}
