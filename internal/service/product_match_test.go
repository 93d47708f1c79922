package service

import (
	"context"
	"testing"
	"time"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/matching"
	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
)

func putProduct(env *testEnv, tenantID, id, name string, price string) {
	owner := tenantID
	p := &model.CatalogProduct{ID: id, TenantID: &owner, Name: name, IsActive: true, UpdatedAt: time.Now()}
	if price != "" {
		p.ListPrice = decPtr(price)
	}
	env.store.PutProduct(p)
}

// TestProductMatchService_Match проверяет подбор по каталогу арендатора.
func TestProductMatchService_Match(t *testing.T) {
	env := newTestEnv(t)
	putProduct(env, tenantA, "sw-24", "24-port Gigabit Switch", "30000")
	putProduct(env, tenantA, "sw-8", "8-port Gigabit Switch", "9000")
	putProduct(env, tenantA, "ups", "UPS 1kVA", "7000")
	putProduct(env, tenantB, "sw-foreign", "24-port gigabit switch managed", "1")

	results, err := env.matcher.Match(context.Background(), tenantA, matching.Query{Description: "24-port gigabit switch"}, 0)
	if err != nil {
		t.Fatalf("Match ошибка: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("кандидатов = %d, ожидалось 2", len(results))
	}
	if results[0].ProductID != "sw-24" {
		t.Errorf("первый кандидат = %s, ожидался sw-24", results[0].ProductID)
	}
	for i, r := range results {
		if r.ProductID == "sw-foreign" || r.ProductID == "ups" {
			t.Errorf("в результате лишний продукт %s", r.ProductID)
		}
		if i > 0 && r.Confidence > results[i-1].Confidence {
			t.Errorf("уверенность растёт: %v после %v", r.Confidence, results[i-1].Confidence)
		}
	}

	limited, err := env.matcher.Match(context.Background(), tenantA, matching.Query{Description: "gigabit switch"}, 1)
	if err != nil {
		t.Fatalf("Match ошибка: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("кандидатов = %d, ожидался 1", len(limited))
	}
}

// TestProductMatchService_Validation проверяет отказ на пустом описании.
func TestProductMatchService_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.matcher.Match(context.Background(), tenantA, matching.Query{Description: "  "}, 5)
	assertErrorIs(t, err, ErrValidation)

	_, err = env.matcher.Match(context.Background(), "", matching.Query{Description: "switch"}, 5)
	assertErrorIs(t, err, ErrTenantRequired)
}

// TestProductMatchService_NoMatches проверяет пустой, но не nil результат.
func TestProductMatchService_NoMatches(t *testing.T) {
	env := newTestEnv(t)

	results, err := env.matcher.Match(context.Background(), tenantA, matching.Query{Description: "крановая установка"}, 5)
	if err != nil {
		t.Fatalf("Match ошибка: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("результат = %v, ожидался пустой срез", results)
	}
}
