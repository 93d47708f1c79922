// boq_generator.go — автоматическое заполнение ведомости по результатам
// разбора документации тендера.
//
// Повторный запуск добавляет позиции заново: генерация не идемпотентна
// по идентичности, что позволяет дописывать новые разделы.
// Каждый кандидат добавляется в отдельной транзакции, поэтому уже
// добавленные позиции сохраняются при сбое на следующих.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/matching"
	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
)

// GenerateResult — итог генерации.
type GenerateResult struct {
	ItemsCreated int
	Items        []*model.BOQItem
	// Skipped — кандидаты, не попавшие в ведомость
	Skipped     int
	SkipReasons []string
	// CatalogUnavailable — каталог не прочитан, позиции добавлены без подбора
	CatalogUnavailable bool
}

// BOQGenerator — генератор позиций BOQ.
type BOQGenerator struct {
	ledger    *BOQLedgerService
	tenders   *TenderDirectory
	catalog   *CatalogCache
	matcher   matching.Matcher
	threshold float64
	logger    *slog.Logger
}

// NewBOQGenerator создаёт генератор.
// threshold — минимальная уверенность для заполнения ставки из каталога.
func NewBOQGenerator(
	ledger *BOQLedgerService,
	tenders *TenderDirectory,
	catalog *CatalogCache,
	matcher matching.Matcher,
	threshold float64,
	logger *slog.Logger,
) *BOQGenerator {
	return &BOQGenerator{
		ledger:    ledger,
		tenders:   tenders,
		catalog:   catalog,
		matcher:   matcher,
		threshold: threshold,
		logger:    logger.With(slog.String("component", "boq_generator")),
	}
}

// Generate добавляет в ведомость по позиции на каждый кандидат разбора.
// Тендер без результатов разбора даёт пустой результат, а не ошибку.
func (g *BOQGenerator) Generate(ctx context.Context, tenantID, tenderID string) (*GenerateResult, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	tender, err := g.tenders.GetFresh(ctx, tenantID, tenderID)
	if err != nil {
		return nil, err
	}

	result := &GenerateResult{Items: []*model.BOQItem{}}
	if len(tender.ParsedItems) == 0 {
		g.logger.Info("У тендера нет результатов разбора",
			slog.String("tenant_id", tenantID),
			slog.String("tender_id", tenderID),
		)
		return result, nil
	}

	products, err := g.catalog.ActiveProducts(ctx, tenantID)
	if err != nil {
		g.logger.Warn("Каталог недоступен, позиции добавляются без подбора",
			slog.String("tenant_id", tenantID),
			slog.String("tender_id", tenderID),
			slog.String("error", err.Error()),
		)
		result.CatalogUnavailable = true
		products = nil
	}

	category := ""
	if tender.Category != nil {
		category = *tender.Category
	}

	for i, candidate := range tender.ParsedItems {
		in := g.candidateInput(candidate, category, products, result.CatalogUnavailable)
		item, err := g.ledger.buildItem(tenantID, tenderID, in)
		if err != nil {
			result.skip(fmt.Sprintf("кандидат %d: %v", i+1, err))
			continue
		}

		if err := g.ledger.appendItem(ctx, item, appendSourceGenerator); err != nil {
			remaining := len(tender.ParsedItems) - i
			result.Skipped += remaining
			result.SkipReasons = append(result.SkipReasons,
				fmt.Sprintf("кандидаты %d-%d: %v", i+1, len(tender.ParsedItems), err))
			g.logger.Warn("Генерация BOQ прервана, возвращается частичный результат",
				slog.String("tenant_id", tenantID),
				slog.String("tender_id", tenderID),
				slog.Int("created", result.ItemsCreated),
				slog.Int("skipped", result.Skipped),
				slog.String("error", err.Error()),
			)
			return result, nil
		}
		result.ItemsCreated++
		result.Items = append(result.Items, item)
	}

	g.logger.Info("Генерация BOQ завершена",
		slog.String("tenant_id", tenantID),
		slog.String("tender_id", tenderID),
		slog.Int("created", result.ItemsCreated),
		slog.Int("skipped", result.Skipped),
		slog.Bool("catalog_unavailable", result.CatalogUnavailable),
	)
	return result, nil
}

func (r *GenerateResult) skip(reason string) {
	r.Skipped++
	r.SkipReasons = append(r.SkipReasons, reason)
}

// candidateInput превращает кандидата разбора в поля позиции
// и при достаточной уверенности заполняет данные подбора.
func (g *BOQGenerator) candidateInput(c model.ParsedItem, category string, products []*model.CatalogProduct, skipMatch bool) BOQItemInput {
	in := BOQItemInput{
		ItemNumber:     c.ItemNumber,
		Description:    c.Description,
		Specifications: optionalString(c.Specifications),
		HSNCode:        optionalString(c.HSNCode),
		Quantity:       c.Quantity,
		Unit:           c.Unit,
	}
	if skipMatch || strings.TrimSpace(c.Description) == "" {
		return in
	}

	results := g.matcher.Match(matching.Query{
		Description: c.Description,
		SpecText:    c.Specifications,
		Category:    category,
	}, products, 1)
	if len(results) == 0 || results[0].Confidence < g.threshold {
		return in
	}

	top := results[0]
	confidence := top.Confidence
	productID := top.ProductID
	in.MatchedProductID = &productID
	in.MatchingConfidence = &confidence
	if top.Product.ListPrice != nil {
		rate := *top.Product.ListPrice
		source := model.RateSourceCatalogMatch
		in.SuggestedRate = &rate
		in.SuggestedRateSource = &source
	}
	if in.HSNCode == nil && top.Product.HSNCode != nil {
		hsn := *top.Product.HSNCode
		in.HSNCode = &hsn
	}
	return in
}

// optionalString возвращает nil для пустой строки.
func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
