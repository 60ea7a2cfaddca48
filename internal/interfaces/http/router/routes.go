package router

import "github.com/ledgerbook/backend/internal/interfaces/http/handler"

// LedgerRoutes returns the route groups of the payment ledger API. Groups
// whose handler is nil are skipped.
func LedgerRoutes(h Handlers) []RouteRegistrar {
	var groups []RouteRegistrar

	if h.Parties != nil {
		parties := NewDomainGroup("parties", "/parties")
		parties.POST("", h.Parties.Create)
		parties.GET("", h.Parties.List)
		parties.GET("/:id", h.Parties.Get)
		parties.GET("/:id/advance", h.Parties.Advance)
		parties.GET("/:id/position", h.Parties.Position)
		parties.GET("/:id/outstanding", h.Parties.Outstanding)
		parties.GET("/:id/payments", h.Parties.Payments)
		groups = append(groups, parties)
	}

	if h.Bills != nil {
		bills := NewDomainGroup("bills", "/bills")
		bills.POST("", h.Bills.Record)
		bills.GET("/:id", h.Bills.Get)
		bills.GET("/:id/outstanding", h.Bills.Outstanding)
		groups = append(groups, bills)
	}

	if h.Payments != nil {
		payments := NewDomainGroup("payments", "/payments")
		payments.POST("", h.Payments.Process)
		payments.POST("/preview", h.Payments.Preview)
		payments.GET("/:id", h.Payments.Get)
		payments.DELETE("/:id", h.Payments.Delete)
		payments.POST("/:id/refund", h.Payments.Refund)

		advances := NewDomainGroup("advances", "/advances")
		advances.POST("/apply", h.Payments.ApplyAdvance)

		receipts := NewDomainGroup("receipt-numbers", "/receipt-numbers")
		receipts.GET("/next", h.Payments.NextReceiptNumber)

		groups = append(groups, payments, advances, receipts)
	}

	if h.Reports != nil {
		reports := NewDomainGroup("reports", "/reports")
		reports.GET("/party-summary", h.Reports.PartySummary)
		reports.GET("/aging", h.Reports.Aging)
		groups = append(groups, reports)
	}

	return groups
}

// SystemRoutes returns the versioned health and system info routes
func SystemRoutes(s *handler.SystemHandler) *DomainGroup {
	system := NewDomainGroup("system", "/system")
	system.GET("/info", s.GetSystemInfo)
	system.GET("/ping", s.Ping)
	system.GET("/health", s.Health)
	return system
}
