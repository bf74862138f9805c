package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ProductOffer: актуальные цена и остаток товара в конкретном магазине.
type ProductOffer struct {
	ProductID   string
	StoreID     string
	Name        string
	Price       Money
	Stock       int32
	WeightGrams int64
}

// CartLine: строка корзины.
type CartLine struct {
	ID             string
	ProductID      string
	Name           string
	UnitPrice      Money
	Qty            int32
	AvailableStock int32
	// WeightGrams: вес одной единицы товара.
	WeightGrams int64
	AddedAt     time.Time
}

// Total возвращает стоимость строки.
func (l CartLine) Total() Money {
	return l.UnitPrice.Times(l.Qty)
}

// Weight возвращает суммарный вес строки в граммах.
func (l CartLine) Weight() int64 {
	return l.WeightGrams * int64(l.Qty)
}

// Cart: корзина пользователя, привязанная к одному магазину.
// Порядок Lines совпадает с порядком добавления.
type Cart struct {
	ID        string
	UserID    string
	StoreID   string
	Lines     []CartLine
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineChange описывает результат изменения строки.
// Clamped выставляется, когда запрошенное количество урезано до остатка.
type LineChange struct {
	Line      CartLine
	Requested int32
	Clamped   bool
}

// NewCart создаёт пустую корзину пользователя в магазине.
func NewCart(userID, storeID string, now time.Time) Cart {
	return Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		StoreID:   storeID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddLine добавляет товар или увеличивает количество существующей строки.
func (c *Cart) AddLine(offer ProductOffer, qty int32, now time.Time) (LineChange, error) {
	if err := ValidQuantity(qty); err != nil {
		return LineChange{}, err
	}
	if offer.Stock <= 0 || qty > offer.Stock {
		return LineChange{}, ErrOutOfStock.WithMessage("product %s: requested %d, in stock %d", offer.ProductID, qty, offer.Stock)
	}

	for i := range c.Lines {
		line := &c.Lines[i]
		if line.ProductID != offer.ProductID {
			continue
		}
		// сумма считается в int64, иначе два больших количества переполняют int32
		requested := int64(line.Qty) + int64(qty)
		line.UnitPrice = offer.Price
		line.AvailableStock = offer.Stock
		line.WeightGrams = offer.WeightGrams
		if offer.Name != "" {
			line.Name = offer.Name
		}
		line.Qty = int32(min(requested, int64(offer.Stock)))
		c.UpdatedAt = now
		return LineChange{
			Line:      *line,
			Requested: int32(min(requested, math.MaxInt32)),
			Clamped:   int64(line.Qty) < requested,
		}, nil
	}

	line := CartLine{
		ID:             uuid.NewString(),
		ProductID:      offer.ProductID,
		Name:           offer.Name,
		UnitPrice:      offer.Price,
		Qty:            qty,
		AvailableStock: offer.Stock,
		WeightGrams:    offer.WeightGrams,
		AddedAt:        now,
	}
	c.Lines = append(c.Lines, line)
	c.UpdatedAt = now
	return LineChange{Line: line, Requested: qty}, nil
}

// SetQuantity задаёт количество строки, урезая его до известного остатка.
func (c *Cart) SetQuantity(lineID string, qty int32, now time.Time) (LineChange, error) {
	if err := ValidQuantity(qty); err != nil {
		return LineChange{}, err
	}
	idx := c.lineIndex(lineID)
	if idx < 0 {
		return LineChange{}, ErrCartLineNotFound
	}

	line := &c.Lines[idx]
	if line.AvailableStock <= 0 {
		return LineChange{}, ErrOutOfStock.WithMessage("product %s is out of stock", line.ProductID)
	}
	line.Qty = min(qty, line.AvailableStock)
	c.UpdatedAt = now
	return LineChange{Line: *line, Requested: qty, Clamped: line.Qty < qty}, nil
}

// RemoveLine удаляет строку. Повторное удаление ничего не делает.
func (c *Cart) RemoveLine(lineID string, now time.Time) bool {
	idx := c.lineIndex(lineID)
	if idx < 0 {
		return false
	}
	c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
	c.UpdatedAt = now
	return true
}

// Clear удаляет все строки.
func (c *Cart) Clear(now time.Time) {
	c.Lines = nil
	c.UpdatedAt = now
}

// SwitchStore переносит корзину в другой магазин; цены и остатки прежнего магазина недействительны.
func (c *Cart) SwitchStore(storeID string, now time.Time) bool {
	if c.StoreID == storeID {
		return false
	}
	c.StoreID = storeID
	c.Clear(now)
	return true
}

// ApplyOffer обновляет цену и остаток строки по свежим данным каталога.
func (c *Cart) ApplyOffer(offer ProductOffer) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == offer.ProductID {
			c.Lines[i].UnitPrice = offer.Price
			c.Lines[i].AvailableStock = offer.Stock
			if offer.WeightGrams > 0 {
				c.Lines[i].WeightGrams = offer.WeightGrams
			}
		}
	}
}

// Line возвращает строку по идентификатору.
func (c Cart) Line(lineID string) (CartLine, bool) {
	idx := c.lineIndex(lineID)
	if idx < 0 {
		return CartLine{}, false
	}
	return c.Lines[idx], true
}

// Subtotal: сумма unitPrice*qty по всем строкам.
func (c Cart) Subtotal() Money {
	var total Money
	for _, line := range c.Lines {
		total += line.Total()
	}
	return total
}

// TotalWeightGrams: суммарный вес корзины.
func (c Cart) TotalWeightGrams() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.Weight()
	}
	return total
}

// IsEmpty сообщает, что в корзине нет строк.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// ProductIDs возвращает идентификаторы товаров в порядке строк.
func (c Cart) ProductIDs() []string {
	ids := make([]string, 0, len(c.Lines))
	for _, line := range c.Lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}

// Clone возвращает копию корзины с независимым срезом строк.
func (c Cart) Clone() Cart {
	c.Lines = append([]CartLine(nil), c.Lines...)
	return c
}

func (c Cart) lineIndex(lineID string) int {
	for i, line := range c.Lines {
		if line.ID == lineID {
			return i
		}
	}
	return -1
}
