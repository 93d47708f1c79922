// Пакет matching — подбор продуктов каталога по свободному описанию позиции.
//
// Контракт Matcher: результат упорядочен по убыванию уверенности, уверенность
// в [0, 1] монотонна по доле совпавших токенов, продукты без общих токенов
// с запросом в результат не попадают. Реализация может быть лексической
// или векторной; LexicalMatcher — лексическая.
package matching

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
)

// Веса составляющих уверенности.
const (
	overlapWeight  = 0.7
	codeHitWeight  = 0.2
	categoryWeight = 0.1
	// minCodeLen — короткие артикулы («A1») дают ложные совпадения
	minCodeLen = 3
)

// Query — запрос подбора.
type Query struct {
	// Description — описание позиции
	Description string
	// SpecText — текст спецификации (опционально)
	SpecText string
	// Category — категория тендера из результатов разбора (опционально)
	Category string
}

// Result — кандидат подбора.
type Result struct {
	ProductID  string
	Confidence float64
	Product    *model.CatalogProduct
}

// Matcher — стратегия подбора продуктов.
type Matcher interface {
	Match(q Query, products []*model.CatalogProduct, limit int) []Result
}

// LexicalMatcher — подбор по пересечению токенов и совпадению артикулов.
type LexicalMatcher struct{}

// NewLexicalMatcher создаёт лексический подборщик.
func NewLexicalMatcher() *LexicalMatcher {
	return &LexicalMatcher{}
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "for": {},
	"with": {}, "to": {}, "in": {}, "on": {}, "by": {}, "as": {}, "at": {}, "is": {},
}

// Tokenize приводит текст к нижнему регистру и режет по всему,
// что не буква и не цифра. Повторы и служебные слова отбрасываются.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// normalizeCode оставляет в артикуле только буквы и цифры в нижнем регистре.
func normalizeCode(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Match оценивает активные продукты и возвращает не более limit кандидатов.
func (m *LexicalMatcher) Match(q Query, products []*model.CatalogProduct, limit int) []Result {
	queryTokens := Tokenize(q.Description + " " + q.SpecText)
	if len(queryTokens) == 0 || limit <= 0 {
		return nil
	}
	querySet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = struct{}{}
	}
	// поля сжимаются по отдельности: артикул не собирается из конца описания и начала характеристик
	compact := []string{normalizeCode(q.Description), normalizeCode(q.SpecText)}
	category := strings.ToLower(strings.TrimSpace(q.Category))

	results := make([]Result, 0)
	for _, p := range products {
		if p == nil || !p.IsActive {
			continue
		}

		overlap := 0
		for _, t := range Tokenize(productText(p)) {
			if _, ok := querySet[t]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}

		score := overlapWeight * float64(overlap) / float64(len(queryTokens))
		if codeHit(p, querySet, compact) {
			score += codeHitWeight
		}
		if category != "" && p.Category != nil && strings.ToLower(strings.TrimSpace(*p.Category)) == category {
			score += categoryWeight
		}

		results = append(results, Result{
			ProductID:  p.ID,
			Confidence: math.Round(math.Min(score, 1)*10000) / 10000,
			Product:    p,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if c := compareListPrice(a.Product, b.Product); c != 0 {
			return c > 0
		}
		if !a.Product.UpdatedAt.Equal(b.Product.UpdatedAt) {
			return a.Product.UpdatedAt.After(b.Product.UpdatedAt)
		}
		return a.ProductID < b.ProductID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// productText — текст продукта, с которым сравниваются токены запроса.
func productText(p *model.CatalogProduct) string {
	parts := []string{p.Name}
	for _, s := range []*string{p.TechnicalDescription, p.Brand, p.Model, p.SKU} {
		if s != nil {
			parts = append(parts, *s)
		}
	}
	return strings.Join(parts, " ")
}

// codeHit — артикул или модель продукта встречается в запросе.
func codeHit(p *model.CatalogProduct, querySet map[string]struct{}, compact []string) bool {
	for _, s := range []*string{p.SKU, p.Model} {
		if s == nil {
			continue
		}
		code := normalizeCode(*s)
		if len(code) < minCodeLen {
			continue
		}
		if _, ok := querySet[code]; ok {
			return true
		}
		for _, c := range compact {
			if strings.Contains(c, code) {
				return true
			}
		}
	}
	return false
}

// compareListPrice: 1 если у a цена выше, -1 если ниже; продукт без цены ниже любого.
func compareListPrice(a, b *model.CatalogProduct) int {
	switch {
	case a.ListPrice == nil && b.ListPrice == nil:
		return 0
	case a.ListPrice == nil:
		return -1
	case b.ListPrice == nil:
		return 1
	default:
		return a.ListPrice.Cmp(*b.ListPrice)
	}
}
