package model

import "time"

// Статусы RFQ.
const (
	RFQStatusDraft  = "draft"
	RFQStatusSent   = "sent"
	RFQStatusClosed = "closed"
)

// Каналы рассылки RFQ.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// Статусы доставки по паре (поставщик, канал).
const (
	DeliveryQueued    = "queued"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// Channels — допустимые каналы рассылки.
var Channels = []string{ChannelEmail, ChannelWhatsApp}

// IsValidChannel проверяет, что канал поддерживается.
func IsValidChannel(ch string) bool {
	for _, c := range Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// DeliveryRecord — статус доставки RFQ одному поставщику по одному каналу.
type DeliveryRecord struct {
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// Deliveries — журнал доставки: канал → поставщик → запись.
// Хранится в rfqs.deliveries (jsonb).
type Deliveries map[string]map[string]DeliveryRecord

// Get возвращает запись доставки для пары (канал, поставщик).
func (d Deliveries) Get(channel, vendorID string) (DeliveryRecord, bool) {
	byVendor, ok := d[channel]
	if !ok {
		return DeliveryRecord{}, false
	}
	rec, ok := byVendor[vendorID]
	return rec, ok
}

// Set записывает статус доставки для пары (канал, поставщик).
func (d Deliveries) Set(channel, vendorID string, rec DeliveryRecord) {
	if d[channel] == nil {
		d[channel] = make(map[string]DeliveryRecord)
	}
	d[channel][vendorID] = rec
}

// Clone возвращает глубокую копию журнала.
func (d Deliveries) Clone() Deliveries {
	out := make(Deliveries, len(d))
	for ch, byVendor := range d {
		m := make(map[string]DeliveryRecord, len(byVendor))
		for v, rec := range byVendor {
			m[v] = rec
		}
		out[ch] = m
	}
	return out
}

// RFQ — запрос коммерческих предложений по части позиций тендера.
// Хранится в таблице rfqs.
type RFQ struct {
	// ID — UUID запроса
	ID string
	// TenantID — идентификатор арендатора
	TenantID string
	// TenderID — тендер
	TenderID string
	// RFQNumber — номер запроса (уникален в пределах арендатора)
	RFQNumber string
	// Subject — тема
	Subject string
	// Message — текст запроса
	Message string
	// BOQItemIDs — упорядоченный список позиций BOQ
	BOQItemIDs []string
	// VendorIDs — поставщики
	VendorIDs []string
	// ResponseDeadline — срок ответа
	ResponseDeadline time.Time
	// Deliveries — журнал доставки по каналам
	Deliveries Deliveries
	// TotalSent — количество попыток отправки (поставщик × канал)
	TotalSent int
	// TotalResponses — количество полученных КП
	TotalResponses int
	// Status — статус (draft, sent, closed)
	Status string
	// CreatedBy — автор запроса
	CreatedBy *string
	// Version — версия для оптимистичной блокировки
	Version int
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
	// SentAt — время первой отправки
	SentAt *time.Time
	// ClosedAt — время закрытия
	ClosedAt *time.Time
}

// HasVendor проверяет, что поставщик входит в RFQ.
func (r *RFQ) HasVendor(vendorID string) bool {
	for _, v := range r.VendorIDs {
		if v == vendorID {
			return true
		}
	}
	return false
}

// Clone возвращает глубокую копию RFQ.
func (r *RFQ) Clone() *RFQ {
	c := *r
	c.BOQItemIDs = append([]string(nil), r.BOQItemIDs...)
	c.VendorIDs = append([]string(nil), r.VendorIDs...)
	c.Deliveries = r.Deliveries.Clone()
	return &c
}

// DeliveryRequest — задание на доставку RFQ одному поставщику по одному каналу.
// Передаётся внешнему транспорту (email/WhatsApp).
type DeliveryRequest struct {
	TenantID  string `json:"tenant_id"`
	RFQID     string `json:"rfq_id"`
	RFQNumber string `json:"rfq_number"`
	VendorID  string `json:"vendor_id"`
	Channel   string `json:"channel"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
}
