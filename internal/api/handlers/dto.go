// dto.go — JSON-представления запросов и ответов API.
package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/matching"
	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
	"github.com/bigkaa/hexabid/costing-module/internal/domain/pricing"
	"github.com/bigkaa/hexabid/costing-module/internal/service"
)

// --- BOQ ---

type boqItemRequest struct {
	ItemNumber          string           `json:"item_number"`
	Description         string           `json:"description"`
	Specifications      *string          `json:"specifications"`
	HSNCode             *string          `json:"hsn_code"`
	Quantity            decimal.Decimal  `json:"quantity"`
	Unit                string           `json:"unit"`
	SuggestedRate       *decimal.Decimal `json:"suggested_rate"`
	SuggestedRateSource *string          `json:"suggested_rate_source"`
	ManualRate          *decimal.Decimal `json:"manual_rate"`
	GSTPercent          *decimal.Decimal `json:"gst_percent"`
	MatchedProductID    *string          `json:"matched_product_id"`
	MatchingConfidence  *float64         `json:"matching_confidence"`
	Notes               *string          `json:"notes"`
}

func (req boqItemRequest) toInput() service.BOQItemInput {
	return service.BOQItemInput{
		ItemNumber:          req.ItemNumber,
		Description:         req.Description,
		Specifications:      req.Specifications,
		HSNCode:             req.HSNCode,
		Quantity:            req.Quantity,
		Unit:                req.Unit,
		SuggestedRate:       req.SuggestedRate,
		SuggestedRateSource: req.SuggestedRateSource,
		ManualRate:          req.ManualRate,
		GSTPercent:          req.GSTPercent,
		MatchedProductID:    req.MatchedProductID,
		MatchingConfidence:  req.MatchingConfidence,
		Notes:               req.Notes,
	}
}

// boqItemPatchRequest — PATCH позиции. Ставки различают отсутствие поля и null.
type boqItemPatchRequest struct {
	ItemNumber      *string               `json:"item_number"`
	Description     *string               `json:"description"`
	Specifications  *string               `json:"specifications"`
	HSNCode         *string               `json:"hsn_code"`
	Quantity        *decimal.Decimal      `json:"quantity"`
	Unit            *string               `json:"unit"`
	SuggestedRate   model.OptionalDecimal `json:"suggested_rate"`
	ManualRate      model.OptionalDecimal `json:"manual_rate"`
	GSTPercent      *decimal.Decimal      `json:"gst_percent"`
	Notes           *string               `json:"notes"`
	ExpectedVersion *int                  `json:"expected_version"`
}

func (req boqItemPatchRequest) toPatch() service.BOQItemPatch {
	return service.BOQItemPatch{
		ItemNumber:      req.ItemNumber,
		Description:     req.Description,
		Specifications:  req.Specifications,
		HSNCode:         req.HSNCode,
		Quantity:        req.Quantity,
		Unit:            req.Unit,
		SuggestedRate:   req.SuggestedRate,
		ManualRate:      req.ManualRate,
		GSTPercent:      req.GSTPercent,
		Notes:           req.Notes,
		ExpectedVersion: req.ExpectedVersion,
	}
}

type reorderRequest struct {
	ItemIDs         []string `json:"item_ids"`
	ExpectedVersion *int64   `json:"expected_version"`
}

type boqItemResponse struct {
	ID                    string           `json:"id"`
	TenderID              string           `json:"tender_id"`
	ItemNumber            string           `json:"item_number"`
	Description           string           `json:"description"`
	Specifications        *string          `json:"specifications"`
	HSNCode               *string          `json:"hsn_code"`
	Quantity              decimal.Decimal  `json:"quantity"`
	Unit                  string           `json:"unit"`
	SuggestedRate         *decimal.Decimal `json:"suggested_rate"`
	SuggestedRateSource   *string          `json:"suggested_rate_source"`
	ManualRate            *decimal.Decimal `json:"manual_rate"`
	FinalRate             *decimal.Decimal `json:"final_rate"`
	GSTPercent            decimal.Decimal  `json:"gst_percent"`
	LineTotal             *decimal.Decimal `json:"line_total"`
	LineTax               *decimal.Decimal `json:"line_tax"`
	MatchedProductID      *string          `json:"matched_product_id"`
	MatchingConfidence    *float64         `json:"matching_confidence"`
	SelectedVendorQuoteID *string          `json:"selected_vendor_quote_id"`
	RowOrder              int              `json:"row_order"`
	Notes                 *string          `json:"notes"`
	Version               int              `json:"version"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

func toBOQItemResponse(it *model.BOQItem) boqItemResponse {
	total := pricing.LineTotal(it.FinalRate, it.Quantity)
	return boqItemResponse{
		ID:                    it.ID,
		TenderID:              it.TenderID,
		ItemNumber:            it.ItemNumber,
		Description:           it.Description,
		Specifications:        it.Specifications,
		HSNCode:               it.HSNCode,
		Quantity:              it.Quantity,
		Unit:                  it.Unit,
		SuggestedRate:         it.SuggestedRate,
		SuggestedRateSource:   it.SuggestedRateSource,
		ManualRate:            it.ManualRate,
		FinalRate:             it.FinalRate,
		GSTPercent:            it.GSTPercent,
		LineTotal:             total,
		LineTax:               pricing.LineTax(total, it.GSTPercent),
		MatchedProductID:      it.MatchedProductID,
		MatchingConfidence:    it.MatchingConfidence,
		SelectedVendorQuoteID: it.SelectedVendorQuoteID,
		RowOrder:              it.RowOrder,
		Notes:                 it.Notes,
		Version:               it.Version,
		CreatedAt:             it.CreatedAt,
		UpdatedAt:             it.UpdatedAt,
	}
}

func toBOQItemResponses(items []*model.BOQItem) []boqItemResponse {
	out := make([]boqItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toBOQItemResponse(it))
	}
	return out
}

type summaryResponse struct {
	TotalItems    int             `json:"total_items"`
	PricedItems   int             `json:"priced_items"`
	UnpricedItems int             `json:"unpriced_items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
}

type ledgerResponse struct {
	TenderID string            `json:"tender_id"`
	Items    []boqItemResponse `json:"items"`
	Summary  summaryResponse   `json:"summary"`
	Version  int64             `json:"version"`
}

func toLedgerResponse(v *service.LedgerView) ledgerResponse {
	return ledgerResponse{
		TenderID: v.TenderID,
		Items:    toBOQItemResponses(v.Items),
		Summary: summaryResponse{
			TotalItems:    v.Summary.TotalItems,
			PricedItems:   v.Summary.PricedItems,
			UnpricedItems: v.Summary.UnpricedItems,
			Subtotal:      v.Summary.Subtotal,
			TotalTax:      v.Summary.TotalTax,
			GrandTotal:    v.Summary.GrandTotal,
		},
		Version: v.Version,
	}
}

type generateResponse struct {
	ItemsCreated       int               `json:"items_created"`
	Items              []boqItemResponse `json:"items"`
	Skipped            int               `json:"skipped"`
	SkipReasons        []string          `json:"skip_reasons"`
	CatalogUnavailable bool              `json:"catalog_unavailable"`
}

// --- Подбор продуктов ---

type matchRequest struct {
	Description string `json:"description"`
	SpecText    string `json:"spec_text"`
	Category    string `json:"category"`
	Limit       int    `json:"limit"`
}

type productResponse struct {
	ID           string           `json:"id"`
	SKU          *string          `json:"sku"`
	Name         string           `json:"name"`
	Brand        *string          `json:"brand"`
	Model        *string          `json:"model"`
	Category     *string          `json:"category"`
	HSNCode      *string          `json:"hsn_code"`
	ListPrice    *decimal.Decimal `json:"list_price"`
	Currency     string           `json:"currency"`
	LeadTimeDays *int             `json:"lead_time_days"`
	OEMVendorID  *string          `json:"oem_vendor_id"`
}

type matchResultResponse struct {
	ProductID  string          `json:"product_id"`
	Confidence float64         `json:"confidence"`
	Product    productResponse `json:"product"`
}

func toMatchResults(results []matching.Result) []matchResultResponse {
	out := make([]matchResultResponse, 0, len(results))
	for _, r := range results {
		p := r.Product
		out = append(out, matchResultResponse{
			ProductID:  r.ProductID,
			Confidence: r.Confidence,
			Product: productResponse{
				ID:           p.ID,
				SKU:          p.SKU,
				Name:         p.Name,
				Brand:        p.Brand,
				Model:        p.Model,
				Category:     p.Category,
				HSNCode:      p.HSNCode,
				ListPrice:    p.ListPrice,
				Currency:     p.Currency,
				LeadTimeDays: p.LeadTimeDays,
				OEMVendorID:  p.OEMVendorID,
			},
		})
	}
	return out
}

// --- RFQ ---

type createRFQRequest struct {
	TenderID         string    `json:"tender_id"`
	BOQItemIDs       []string  `json:"boq_item_ids"`
	VendorIDs        []string  `json:"vendor_ids"`
	Subject          string    `json:"subject"`
	Message          string    `json:"message"`
	ResponseDeadline time.Time `json:"response_deadline"`
}

type sendRFQRequest struct {
	Channels  []string `json:"channels"`
	VendorIDs []string `json:"vendor_ids"`
}

type deliveryStatusRequest struct {
	VendorID string `json:"vendor_id"`
	Channel  string `json:"channel"`
	Status   string `json:"status"`
	Error    string `json:"error"`
}

type reopenRFQRequest struct {
	ResponseDeadline *time.Time `json:"response_deadline"`
}

type rfqResponse struct {
	ID               string           `json:"id"`
	TenderID         string           `json:"tender_id"`
	RFQNumber        string           `json:"rfq_number"`
	Subject          string           `json:"subject"`
	Message          string           `json:"message"`
	BOQItemIDs       []string         `json:"boq_item_ids"`
	VendorIDs        []string         `json:"vendor_ids"`
	ResponseDeadline time.Time        `json:"response_deadline"`
	Deliveries       model.Deliveries `json:"deliveries"`
	TotalSent        int              `json:"total_sent"`
	TotalResponses   int              `json:"total_responses"`
	Status           string           `json:"status"`
	CreatedBy        *string          `json:"created_by"`
	Version          int              `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	SentAt           *time.Time       `json:"sent_at"`
	ClosedAt         *time.Time       `json:"closed_at"`
}

func toRFQResponse(r *model.RFQ) rfqResponse {
	deliveries := r.Deliveries
	if deliveries == nil {
		deliveries = model.Deliveries{}
	}
	return rfqResponse{
		ID:               r.ID,
		TenderID:         r.TenderID,
		RFQNumber:        r.RFQNumber,
		Subject:          r.Subject,
		Message:          r.Message,
		BOQItemIDs:       r.BOQItemIDs,
		VendorIDs:        r.VendorIDs,
		ResponseDeadline: r.ResponseDeadline,
		Deliveries:       deliveries,
		TotalSent:        r.TotalSent,
		TotalResponses:   r.TotalResponses,
		Status:           r.Status,
		CreatedBy:        r.CreatedBy,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		SentAt:           r.SentAt,
		ClosedAt:         r.ClosedAt,
	}
}

// --- КП поставщиков ---

type recordQuoteRequest struct {
	TenderID         string            `json:"tender_id"`
	VendorID         string            `json:"vendor_id"`
	RFQID            *string           `json:"rfq_id"`
	QuoteNumber      *string           `json:"quote_number"`
	QuoteDate        *time.Time        `json:"quote_date"`
	ValidUntil       *time.Time        `json:"valid_until"`
	Currency         string            `json:"currency"`
	TotalAmount      *decimal.Decimal  `json:"total_amount"`
	Lines            []model.QuoteLine `json:"lines"`
	PaymentTerms     *string           `json:"payment_terms"`
	DeliveryTerms    *string           `json:"delivery_terms"`
	WarrantyTerms    *string           `json:"warranty_terms"`
	QuoteDocumentURL *string           `json:"quote_document_url"`
	InternalNotes    *string           `json:"internal_notes"`
}

func (req recordQuoteRequest) toInput() service.RecordQuoteInput {
	return service.RecordQuoteInput{
		TenderID:         req.TenderID,
		VendorID:         req.VendorID,
		RFQID:            req.RFQID,
		QuoteNumber:      req.QuoteNumber,
		QuoteDate:        req.QuoteDate,
		ValidUntil:       req.ValidUntil,
		Currency:         req.Currency,
		TotalAmount:      req.TotalAmount,
		Lines:            req.Lines,
		PaymentTerms:     req.PaymentTerms,
		DeliveryTerms:    req.DeliveryTerms,
		WarrantyTerms:    req.WarrantyTerms,
		QuoteDocumentURL: req.QuoteDocumentURL,
		InternalNotes:    req.InternalNotes,
	}
}

type quoteMappingRequest struct {
	BOQItemID string `json:"boq_item_id"`
	LineIndex int    `json:"line_index"`
}

type selectQuoteRequest struct {
	Mappings        []quoteMappingRequest `json:"mappings"`
	ExpectedVersion *int                  `json:"expected_version"`
}

func (req selectQuoteRequest) toInput() service.SelectInput {
	in := service.SelectInput{
		Mappings:        make([]service.QuoteMapping, 0, len(req.Mappings)),
		ExpectedVersion: req.ExpectedVersion,
	}
	for _, m := range req.Mappings {
		in.Mappings = append(in.Mappings, service.QuoteMapping{BOQItemID: m.BOQItemID, LineIndex: m.LineIndex})
	}
	return in
}

type quoteResponse struct {
	ID               string            `json:"id"`
	TenderID         string            `json:"tender_id"`
	VendorID         string            `json:"vendor_id"`
	RFQID            *string           `json:"rfq_id"`
	QuoteNumber      *string           `json:"quote_number"`
	QuoteDate        *time.Time        `json:"quote_date"`
	ValidUntil       *time.Time        `json:"valid_until"`
	Currency         string            `json:"currency"`
	TotalAmount      decimal.Decimal   `json:"total_amount"`
	Lines            []model.QuoteLine `json:"lines"`
	PaymentTerms     *string           `json:"payment_terms"`
	DeliveryTerms    *string           `json:"delivery_terms"`
	WarrantyTerms    *string           `json:"warranty_terms"`
	QuoteDocumentURL *string           `json:"quote_document_url"`
	InternalNotes    *string           `json:"internal_notes"`
	Status           string            `json:"status"`
	Version          int               `json:"version"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func toQuoteResponse(q *model.VendorQuote) quoteResponse {
	lines := q.Lines
	if lines == nil {
		lines = []model.QuoteLine{}
	}
	return quoteResponse{
		ID:               q.ID,
		TenderID:         q.TenderID,
		VendorID:         q.VendorID,
		RFQID:            q.RFQID,
		QuoteNumber:      q.QuoteNumber,
		QuoteDate:        q.QuoteDate,
		ValidUntil:       q.ValidUntil,
		Currency:         q.Currency,
		TotalAmount:      q.TotalAmount,
		Lines:            lines,
		PaymentTerms:     q.PaymentTerms,
		DeliveryTerms:    q.DeliveryTerms,
		WarrantyTerms:    q.WarrantyTerms,
		QuoteDocumentURL: q.QuoteDocumentURL,
		InternalNotes:    q.InternalNotes,
		Status:           q.Status,
		Version:          q.Version,
		CreatedAt:        q.CreatedAt,
		UpdatedAt:        q.UpdatedAt,
	}
}

type selectQuoteResponse struct {
	Quote            quoteResponse     `json:"quote"`
	Items            []boqItemResponse `json:"items"`
	RejectedQuoteIDs []string          `json:"rejected_quote_ids"`
}

// listResponse — список сущностей тендера без пагинации.
type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func newListResponse[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Total: len(items)}
}
