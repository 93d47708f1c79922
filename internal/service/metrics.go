// metrics.go — Prometheus-метрики бизнес-операций.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	boqItemsAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_boq_items_appended_total",
		Help: "Количество добавленных позиций BOQ",
	}, []string{"source"}) // source: manual, generator

	rfqDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_rfq_dispatch_total",
		Help: "Количество попыток рассылки RFQ (поставщик × канал)",
	}, []string{"channel"})

	rfqDispatchFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_rfq_dispatch_failed_total",
		Help: "Количество заданий рассылки, не принятых очередью",
	}, []string{"channel"})

	vendorQuotesRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_vendor_quotes_recorded_total",
		Help: "Количество зарегистрированных КП поставщиков",
	})

	quoteSelectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_quote_selections_total",
		Help: "Количество позиций BOQ, получивших ставку из выбранного КП",
	})

	rfqExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_rfq_expired_total",
		Help: "Количество RFQ, закрытых по истечении срока ответа",
	})

	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_cache_hits_total",
		Help: "Количество попаданий в LRU-кэши",
	}, []string{"cache"}) // cache: catalog, tender

	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_cache_misses_total",
		Help: "Количество промахов LRU-кэшей",
	}, []string{"cache"})
)
