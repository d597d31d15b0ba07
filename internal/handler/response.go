package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/dashboard"
	"github.com/xenking/bookstore/internal/domain/order"
	"github.com/xenking/bookstore/pkg/pagination"
)

// money renders an exact amount as a JSON number rounded to cents.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

type cartLineResponse struct {
	BookID    string `json:"bookId"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice money  `json:"unitPrice"`
	Subtotal  money  `json:"subtotal"`
}

type cartResponse struct {
	Items       []cartLineResponse `json:"items"`
	ItemCount   int                `json:"itemCount"`
	Subtotal    money              `json:"subtotal"`
	Tax         money              `json:"tax"`
	Shipping    money              `json:"shipping"`
	Total       money              `json:"total"`
	Unavailable []string           `json:"unavailable,omitempty"`
}

func newCartResponse(p *cart.Priced) cartResponse {
	items := make([]cartLineResponse, len(p.Lines))
	for i, l := range p.Lines {
		items[i] = cartLineResponse{
			BookID:    l.BookID,
			Title:     l.Title,
			Quantity:  l.Quantity,
			UnitPrice: money(l.UnitPrice),
			Subtotal:  money(l.LineSubtotal),
		}
	}
	return cartResponse{
		Items:       items,
		ItemCount:   p.ItemCount,
		Subtotal:    money(p.Subtotal),
		Tax:         money(p.Tax),
		Shipping:    money(p.Shipping),
		Total:       money(p.Total),
		Unavailable: p.Unavailable,
	}
}

type orderItemResponse struct {
	BookID   string `json:"bookId"`
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
	Price    money  `json:"price"`
	Subtotal money  `json:"subtotal"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"orderNumber"`
	Status          order.Status        `json:"status"`
	Items           []orderItemResponse `json:"items"`
	Subtotal        money               `json:"subtotal"`
	Tax             money               `json:"tax"`
	ShippingCost    money               `json:"shippingCost"`
	Total           money               `json:"total"`
	ShippingAddress string              `json:"shippingAddress"`
	ShippingCity    string              `json:"shippingCity"`
	ShippingCountry string              `json:"shippingCountry"`
	ShippingZipCode string              `json:"shippingZipCode"`
	PaymentMethod   string              `json:"paymentMethod"`
	Notes           *string             `json:"notes"`
	UserID          string              `json:"userId"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func newOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			BookID:   it.BookID,
			Title:    it.Title,
			Quantity: it.Quantity,
			Price:    money(it.UnitPrice),
			Subtotal: money(it.Subtotal()),
		}
	}
	resp := orderResponse{
		ID:              o.ID,
		OrderNumber:     o.Number,
		Status:          o.Status,
		Items:           items,
		Subtotal:        money(o.Subtotal),
		Tax:             money(o.Tax),
		ShippingCost:    money(o.ShippingCost),
		Total:           money(o.Total),
		ShippingAddress: o.Shipping.Address,
		ShippingCity:    o.Shipping.City,
		ShippingCountry: o.Shipping.Country,
		ShippingZipCode: o.Shipping.ZipCode,
		PaymentMethod:   o.PaymentMethod,
		UserID:          o.UserID,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.Notes != "" {
		resp.Notes = &o.Notes
	}
	return resp
}

type orderListResponse struct {
	Orders      []orderResponse `json:"orders"`
	TotalCount  int             `json:"totalCount"`
	TotalPages  int             `json:"totalPages"`
	CurrentPage int             `json:"currentPage"`
	HasNextPage bool            `json:"hasNextPage"`
}

func newOrderListResponse(l *order.List) orderListResponse {
	orders := make([]orderResponse, len(l.Orders))
	for i := range l.Orders {
		orders[i] = newOrderResponse(&l.Orders[i])
	}
	pages := pagination.TotalPages(l.Total, l.Page.Limit)
	return orderListResponse{
		Orders:      orders,
		TotalCount:  l.Total,
		TotalPages:  pages,
		CurrentPage: l.Page.Page,
		HasNextPage: l.Page.Page < pages,
	}
}

type bookResponse struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Category string `json:"category"`
	Price    money  `json:"price"`
	Stock    int    `json:"stock"`
	InStock  bool   `json:"inStock"`
}

func newBookResponse(b *book.Book) bookResponse {
	return bookResponse{
		ID:       b.ID,
		Title:    b.Title,
		Author:   b.Author,
		Category: b.Category,
		Price:    money(b.Price),
		Stock:    b.Stock,
		InStock:  b.Stock > 0,
	}
}

type bookListResponse struct {
	Books       []bookResponse `json:"books"`
	TotalCount  int            `json:"totalCount"`
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
	HasNextPage bool           `json:"hasNextPage"`
}

func newBookListResponse(l *book.List) bookListResponse {
	books := make([]bookResponse, len(l.Books))
	for i := range l.Books {
		books[i] = newBookResponse(&l.Books[i])
	}
	pages := pagination.TotalPages(l.Total, l.Page.Limit)
	return bookListResponse{
		Books:       books,
		TotalCount:  l.Total,
		TotalPages:  pages,
		CurrentPage: l.Page.Page,
		HasNextPage: l.Page.Page < pages,
	}
}

type topSellerResponse struct {
	bookResponse
	Sold     int  `json:"sold"`
	IsActive bool `json:"isActive"`
}

type dashboardResponse struct {
	TotalBooks      int                 `json:"totalBooks"`
	TotalUsers      int                 `json:"totalUsers"`
	TotalOrders     int                 `json:"totalOrders"`
	TotalRevenue    money               `json:"totalRevenue"`
	PendingOrders   int                 `json:"pendingOrders"`
	RecentOrders    []orderResponse     `json:"recentOrders"`
	TopSellingBooks []topSellerResponse `json:"topSellingBooks"`
}

func newDashboardResponse(s *dashboard.Summary) dashboardResponse {
	resp := dashboardResponse{
		TotalBooks:      s.TotalBooks,
		TotalUsers:      s.TotalUsers,
		TotalOrders:     s.TotalOrders,
		TotalRevenue:    money(s.TotalRevenue),
		PendingOrders:   s.PendingOrders,
		RecentOrders:    make([]orderResponse, len(s.RecentOrders)),
		TopSellingBooks: make([]topSellerResponse, len(s.TopSellers)),
	}
	for i := range s.RecentOrders {
		resp.RecentOrders[i] = newOrderResponse(&s.RecentOrders[i])
	}
	for i := range s.TopSellers {
		b := &s.TopSellers[i]
		resp.TopSellingBooks[i] = topSellerResponse{
			bookResponse: newBookResponse(b),
			Sold:         b.Sold,
			IsActive:     b.IsActive,
		}
	}
	return resp
}
