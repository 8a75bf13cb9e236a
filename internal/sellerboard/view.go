package sellerboard

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
	"github.com/lokrise/checkout/pkg/marketplace"
)

const (
	SourcePage    = "page"
	SourceBackend = "backend"
)

// HistoryEntry is a status history element. Pending entries are projected from the
// overlay and are not part of the server history.
type HistoryEntry struct {
	Status  enums.OrderStatus `json:"status"`
	Date    time.Time         `json:"date"`
	Note    string            `json:"note,omitempty"`
	Pending bool              `json:"pending,omitempty"`
}

// BoardOrder is a backend order with the pending overlay merged in.
type BoardOrder struct {
	marketplace.Order
	PendingStatus *enums.OrderStatus `json:"pendingStatus,omitempty"`
	History       []HistoryEntry     `json:"history"`
}

// Stats are order counts per status. Source says whether they come from the backend
// aggregate or were recomputed from a loaded page.
type Stats struct {
	Pending      int             `json:"pending"`
	Confirmed    int             `json:"confirmed"`
	Processing   int             `json:"processing"`
	Shipped      int             `json:"shipped"`
	Delivered    int             `json:"delivered"`
	Cancelled    int             `json:"cancelled"`
	Refunded     int             `json:"refunded"`
	Total        int             `json:"total"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	Source       string          `json:"source"`
}

// Page is one page of the seller listing.
type Page struct {
	Orders      []BoardOrder `json:"orders"`
	TotalPages  int          `json:"totalPages"`
	TotalOrders int          `json:"totalOrders"`
	PageStats   Stats        `json:"pageStats"`
}

// StatsReport carries the authoritative backend stats. Divergent is set when a complete
// unfiltered listing disagrees with them.
type StatsReport struct {
	Stats     Stats  `json:"stats"`
	PageStats *Stats `json:"pageStats,omitempty"`
	Divergent bool   `json:"divergent"`
}

func pageStats(orders []marketplace.Order) Stats {
	stats := Stats{TotalRevenue: decimal.Zero, Source: SourcePage}
	for _, o := range orders {
		stats.Total++
		switch o.Status {
		case enums.OrderStatusPending:
			stats.Pending++
		case enums.OrderStatusConfirmed:
			stats.Confirmed++
		case enums.OrderStatusProcessing:
			stats.Processing++
		case enums.OrderStatusShipped:
			stats.Shipped++
		case enums.OrderStatusDelivered:
			stats.Delivered++
		case enums.OrderStatusCancelled:
			stats.Cancelled++
		case enums.OrderStatusRefunded:
			stats.Refunded++
		}
		if o.Status != enums.OrderStatusCancelled && o.Status != enums.OrderStatusRefunded {
			stats.TotalRevenue = stats.TotalRevenue.Add(o.TotalAmount)
		}
	}
	return stats
}

func backendStats(s *marketplace.SellerStats) Stats {
	return Stats{
		Pending:      s.Pending,
		Confirmed:    s.Confirmed,
		Shipped:      s.Shipped,
		Delivered:    s.Delivered,
		Cancelled:    s.Cancelled,
		Total:        s.Total,
		TotalRevenue: s.TotalRevenue,
		Source:       SourceBackend,
	}
}

// diverges compares the counts the backend aggregate reports.
func diverges(page, backend Stats) bool {
	return page.Pending != backend.Pending ||
		page.Confirmed != backend.Confirmed ||
		page.Shipped != backend.Shipped ||
		page.Delivered != backend.Delivered ||
		page.Cancelled != backend.Cancelled ||
		page.Total != backend.Total
}

// overlay merges pending mutations into orders without touching the server history.
func overlay(orders []marketplace.Order, pending []models.StatusMutation) []BoardOrder {
	byOrder := make(map[string]models.StatusMutation, len(pending))
	for _, m := range pending {
		byOrder[m.OrderID] = m
	}
	out := make([]BoardOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, withOverlay(o, byOrder[o.ID]))
	}
	return out
}

func withOverlay(o marketplace.Order, pending models.StatusMutation) BoardOrder {
	history := make([]HistoryEntry, 0, len(o.StatusHistory)+1)
	for _, h := range o.StatusHistory {
		history = append(history, HistoryEntry{Status: h.Status, Date: h.Date, Note: h.Note})
	}
	board := BoardOrder{Order: o, History: history}
	if pending.OrderID == "" {
		return board
	}
	to := pending.ToStatus
	board.PendingStatus = &to
	board.History = append(board.History, HistoryEntry{
		Status:  to,
		Date:    pending.CreatedAt,
		Note:    pending.Note,
		Pending: true,
	})
	return board
}

// historyConsistent checks that the server history ends with the current status.
func historyConsistent(o marketplace.Order) bool {
	if len(o.StatusHistory) == 0 {
		return false
	}
	for i := 1; i < len(o.StatusHistory); i++ {
		if o.StatusHistory[i].Date.Before(o.StatusHistory[i-1].Date) {
			return false
		}
	}
	return o.StatusHistory[len(o.StatusHistory)-1].Status == o.Status
}
