package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
	"github.com/bigkaa/hexabid/costing-module/internal/repository"
)

// --- Ведомости ---

type ledgerRepo struct{ base }

func (r *ledgerRepo) Lock(_ context.Context, tenantID, tenderID string) (int64, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}
	defer r.lock()()
	key := ledgerKey{tenantID, tenderID}
	v, ok := r.st().ledgers[key]
	if !ok {
		r.st().ledgers[key] = 0
	}
	return v, nil
}

func (r *ledgerRepo) Bump(_ context.Context, tenantID, tenderID string) (int64, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}
	defer r.lock()()
	key := ledgerKey{tenantID, tenderID}
	v, ok := r.st().ledgers[key]
	if !ok {
		return 0, repository.ErrNotFound
	}
	r.st().ledgers[key] = v + 1
	return v + 1, nil
}

func (r *ledgerRepo) Version(_ context.Context, tenantID, tenderID string) (int64, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}
	defer r.lock()()
	return r.st().ledgers[ledgerKey{tenantID, tenderID}], nil
}

// --- Позиции BOQ ---

type boqItemRepo struct{ base }

func copyItem(it *model.BOQItem) *model.BOQItem {
	c := *it
	return &c
}

func (r *boqItemRepo) Create(_ context.Context, item *model.BOQItem) error {
	if err := checkTenant(item.TenantID); err != nil {
		return err
	}
	defer r.lock()()
	if _, exists := r.st().items[item.ID]; exists {
		return repository.ErrConflict
	}
	for _, it := range r.st().items {
		if it.TenantID == item.TenantID && it.TenderID == item.TenderID &&
			it.DeletedAt == nil && it.RowOrder == item.RowOrder {
			return repository.ErrConflict
		}
	}
	now := r.now()
	item.Version = 1
	item.CreatedAt = now
	item.UpdatedAt = now
	r.st().items[item.ID] = copyItem(item)
	return nil
}

func (r *boqItemRepo) GetByID(_ context.Context, tenantID, id string) (*model.BOQItem, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	defer r.lock()()
	return r.live(tenantID, id)
}

func (r *boqItemRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*model.BOQItem, error) {
	return r.GetByID(ctx, tenantID, id)
}

func (r *boqItemRepo) live(tenantID, id string) (*model.BOQItem, error) {
	it, ok := r.st().items[id]
	if !ok || it.TenantID != tenantID || it.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return copyItem(it), nil
}

func (r *boqItemRepo) ListByTender(_ context.Context, tenantID, tenderID string) ([]*model.BOQItem, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	defer r.lock()()
	var result []*model.BOQItem
	for _, it := range r.st().items {
		if it.TenantID == tenantID && it.TenderID == tenderID && it.DeletedAt == nil {
			result = append(result, copyItem(it))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RowOrder < result[j].RowOrder })
	return result, nil
}

func (r *boqItemRepo) MaxRowOrder(_ context.Context, tenantID, tenderID string) (int, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}
	defer r.lock()()
	maxOrder := 0
	for _, it := range r.st().items {
		if it.TenantID == tenantID && it.TenderID == tenderID && it.RowOrder > maxOrder {
			maxOrder = it.RowOrder
		}
	}
	return maxOrder, nil
}

func (r *boqItemRepo) Update(_ context.Context, item *model.BOQItem) error {
	if err := checkTenant(item.TenantID); err != nil {
		return err
	}
	defer r.lock()()
	cur, err := r.live(item.TenantID, item.ID)
	if err != nil {
		return err
	}
	item.TenderID = cur.TenderID
	item.RowOrder = cur.RowOrder
	item.CreatedAt = cur.CreatedAt
	item.Version = cur.Version + 1
	item.UpdatedAt = r.now()
	r.st().items[item.ID] = copyItem(item)
	return nil
}

func (r *boqItemRepo) SoftDelete(_ context.Context, tenantID, id string) error {
	if err := checkTenant(tenantID); err != nil {
		return err
	}
	defer r.lock()()
	cur, err := r.live(tenantID, id)
	if err != nil {
		return err
	}
	now := r.now()
	cur.DeletedAt = &now
	cur.Version++
	cur.UpdatedAt = now
	r.st().items[id] = cur
	return nil
}

func (r *boqItemRepo) Renumber(_ context.Context, tenantID, tenderID string, orderedIDs []string) error {
	if err := checkTenant(tenantID); err != nil {
		return err
	}
	defer r.lock()()
	live := make(map[string]*model.BOQItem)
	for _, it := range r.st().items {
		if it.TenantID == tenantID && it.TenderID == tenderID && it.DeletedAt == nil {
			live[it.ID] = it
		}
	}
	if len(live) != len(orderedIDs) {
		return repository.ErrConflict
	}
	for _, id := range orderedIDs {
		if _, ok := live[id]; !ok {
			return repository.ErrConflict
		}
	}
	now := r.now()
	for i, id := range orderedIDs {
		c := copyItem(live[id])
		c.RowOrder = i + 1
		c.Version++
		c.UpdatedAt = now
		r.st().items[id] = c
	}
	return nil
}

// --- RFQ ---

type rfqRepo struct{ base }

func (r *rfqRepo) Create(_ context.Context, rfq *model.RFQ) error {
	if err := checkTenant(rfq.TenantID); err != nil {
		return err
	}
	defer r.lock()()
	if _, exists := r.st().rfqs[rfq.ID]; exists {
		return repository.ErrConflict
	}
	for _, x := range r.st().rfqs {
		if x.TenantID == rfq.TenantID && x.RFQNumber == rfq.RFQNumber {
			return repository.ErrConflict
		}
	}
	if rfq.Deliveries == nil {
		rfq.Deliveries = model.Deliveries{}
	}
	now := r.now()
	rfq.Version = 1
	rfq.CreatedAt = now
	rfq.UpdatedAt = now
	r.st().rfqs[rfq.ID] = rfq.Clone()
	return nil
}

func (r *rfqRepo) GetByID(_ context.Context, tenantID, id string) (*model.RFQ, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	defer r.lock()()
	return r.get(tenantID, id)
}

func (r *rfqRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*model.RFQ, error) {
	return r.GetByID(ctx, tenantID, id)
}

func (r *rfqRepo) get(tenantID, id string) (*model.RFQ, error) {
	x, ok := r.st().rfqs[id]
	if !ok || x.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return x.Clone(), nil
}

func (r *rfqRepo) ListByTender(_ context.Context, tenantID, tenderID string) ([]*model.RFQ, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	defer r.lock()()
	var result []*model.RFQ
	for _, x := range r.st().rfqs {
		if x.TenantID == tenantID && x.TenderID == tenderID {
			result = append(result, x.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *rfqRepo) Update(_ context.Context, rfq *model.RFQ) error {
	if err := checkTenant(rfq.TenantID); err != nil {
		return err
	}
	defer r.lock()()
	cur, err := r.get(rfq.TenantID, rfq.ID)
	if err != nil {
		return err
	}
	rfq.TenderID = cur.TenderID
	rfq.RFQNumber = cur.RFQNumber
	rfq.CreatedAt = cur.CreatedAt
	rfq.CreatedBy = cur.CreatedBy
	rfq.Version = cur.Version + 1
	rfq.UpdatedAt = r.now()
	r.st().rfqs[rfq.ID] = rfq.Clone()
	return nil
}

func (r *rfqRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*model.RFQ, error) {
	defer r.lock()()
	var result []*model.RFQ
	for _, x := range r.st().rfqs {
		if x.Status != model.RFQStatusClosed && x.ResponseDeadline.Before(now) {
			result = append(result, x.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ResponseDeadline.Before(result[j].ResponseDeadline) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- КП поставщиков ---

type quoteRepo struct{ base }

func sameRFQ(a, b *string) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return *a == *b
	}
}

func (r *quoteRepo) Create(_ context.Context, q *model.VendorQuote) error {
	if err := checkTenant(q.TenantID); err != nil {
		return err
	}
	defer r.lock()()
	if _, exists := r.st().quotes[q.ID]; exists {
		return repository.ErrConflict
	}
	if q.QuoteNumber != nil {
		if _, err := r.findByNumber(q.TenantID, q.VendorID, q.RFQID, *q.QuoteNumber); err == nil {
			return repository.ErrConflict
		}
	}
	now := r.now()
	q.Version = 1
	q.CreatedAt = now
	q.UpdatedAt = now
	r.st().quotes[q.ID] = q.Clone()
	return nil
}

func (r *quoteRepo) GetByID(_ context.Context, tenantID, id string) (*model.VendorQuote, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	defer r.lock()()
	return r.get(tenantID, id)
}

func (r *quoteRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*model.VendorQuote, error) {
	return r.GetByID(ctx, tenantID, id)
}

func (r *quoteRepo) get(tenantID, id string) (*model.VendorQuote, error) {
	q, ok := r.st().quotes[id]
	if !ok || q.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return q.Clone(), nil
}

func (r *quoteRepo) FindByNumber(_ context.Context, tenantID, vendorID string, rfqID *string, quoteNumber string) (*model.VendorQuote, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	defer r.lock()()
	return r.findByNumber(tenantID, vendorID, rfqID, quoteNumber)
}

func (r *quoteRepo) findByNumber(tenantID, vendorID string, rfqID *string, quoteNumber string) (*model.VendorQuote, error) {
	for _, q := range r.st().quotes {
		if q.TenantID == tenantID && q.VendorID == vendorID && sameRFQ(q.RFQID, rfqID) &&
			q.QuoteNumber != nil && *q.QuoteNumber == quoteNumber {
			return q.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *quoteRepo) ListByTender(_ context.Context, tenantID, tenderID string) ([]*model.VendorQuote, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	defer r.lock()()
	var result []*model.VendorQuote
	for _, q := range r.st().quotes {
		if q.TenantID == tenantID && q.TenderID == tenderID {
			result = append(result, q.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *quoteRepo) ListByRFQ(_ context.Context, tenantID, rfqID string) ([]*model.VendorQuote, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	defer r.lock()()
	var result []*model.VendorQuote
	for _, q := range r.st().quotes {
		if q.TenantID == tenantID && q.RFQID != nil && *q.RFQID == rfqID {
			result = append(result, q.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *quoteRepo) UpdateStatus(_ context.Context, tenantID, id, status string) (*model.VendorQuote, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	defer r.lock()()
	q, err := r.get(tenantID, id)
	if err != nil {
		return nil, err
	}
	q.Status = status
	q.Version++
	q.UpdatedAt = r.now()
	r.st().quotes[id] = q.Clone()
	return q, nil
}

// --- Выбор КП ---

type selectionRepo struct{ base }

func (r *selectionRepo) GetByItem(_ context.Context, tenantID, boqItemID string) (*model.QuoteSelection, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	defer r.lock()()
	s, ok := r.st().selections[selectionKey{tenantID, boqItemID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (r *selectionRepo) Upsert(_ context.Context, sel *model.QuoteSelection) error {
	if err := checkTenant(sel.TenantID); err != nil {
		return err
	}
	defer r.lock()()
	sel.SelectedAt = r.now()
	c := *sel
	r.st().selections[selectionKey{sel.TenantID, sel.BOQItemID}] = &c
	return nil
}

func (r *selectionRepo) CountByQuote(_ context.Context, tenantID, quoteID string) (int, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}
	defer r.lock()()
	count := 0
	for k, s := range r.st().selections {
		if k.tenantID == tenantID && s.QuoteID == quoteID {
			count++
		}
	}
	return count, nil
}

func (r *selectionRepo) DeleteByItem(_ context.Context, tenantID, boqItemID string) (string, error) {
	if err := checkTenant(tenantID); err != nil {
		return "", err
	}
	defer r.lock()()
	key := selectionKey{tenantID, boqItemID}
	s, ok := r.st().selections[key]
	if !ok {
		return "", nil
	}
	delete(r.st().selections, key)
	return s.QuoteID, nil
}

// --- Каталог ---

type catalogRepo struct{ base }

func (r *catalogRepo) visible(owner *string, tenantID string) bool {
	if owner == nil {
		return r.s.opts.SharedCatalog
	}
	return *owner == tenantID
}

func (r *catalogRepo) ListActiveProducts(_ context.Context, tenantID string) ([]*model.CatalogProduct, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	defer r.lock()()
	var result []*model.CatalogProduct
	for _, p := range r.st().products {
		if p.IsActive && r.visible(p.TenantID, tenantID) {
			c := *p
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return result, nil
}

func (r *catalogRepo) GetProduct(_ context.Context, tenantID, id string) (*model.CatalogProduct, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	defer r.lock()()
	p, ok := r.st().products[id]
	if !ok || !r.visible(p.TenantID, tenantID) {
		return nil, repository.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r *catalogRepo) GetVendor(_ context.Context, tenantID, id string) (*model.OEMVendor, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	defer r.lock()()
	v, ok := r.st().vendors[id]
	if !ok || !r.visible(v.TenantID, tenantID) {
		return nil, repository.ErrNotFound
	}
	c := *v
	return &c, nil
}
