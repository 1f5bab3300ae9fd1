package domain

import (
	"github.com/shopspring/decimal"
)

// CartLine — одна позиция корзины: товар и его количество.
type CartLine struct {
	// ProductID уникален в пределах корзины.
	ProductID string `json:"productId"`
	// Name, ImageURL и Price фиксируются в момент добавления и не сверяются с каталогом.
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"imageUrl"`
	// Quantity не ограничивается ни сверху, ни снизу.
	Quantity int `json:"quantity"`
}

// Subtotal возвращает price * quantity для позиции.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart агрегирует позиции корзины в порядке добавления.
// Не потокобезопасен: синхронизацию обеспечивает владелец.
type Cart struct {
	lines []CartLine
}

// NewCart создаёт корзину из готового списка позиций.
// Дубликаты ProductID схлопываются так же, как при Add.
func NewCart(lines []CartLine) *Cart {
	c := &Cart{lines: make([]CartLine, 0, len(lines))}
	for _, line := range lines {
		c.Add(line)
	}
	return c
}

// Add добавляет позицию. Если товар уже в корзине, количество суммируется
// и возвращается merged=true.
func (c *Cart) Add(item CartLine) (merged bool) {
	if idx := c.indexOf(item.ProductID); idx >= 0 {
		c.lines[idx].Quantity += item.Quantity
		return true
	}
	c.lines = append(c.lines, item)
	return false
}

// Remove удаляет позицию; отсутствие товара не является ошибкой.
func (c *Cart) Remove(productID string) bool {
	idx := c.indexOf(productID)
	if idx < 0 {
		return false
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	return true
}

// SetQuantity перезаписывает количество как есть, без ограничений на ноль
// и отрицательные значения.
func (c *Cart) SetQuantity(productID string, quantity int) bool {
	idx := c.indexOf(productID)
	if idx < 0 {
		return false
	}
	c.lines[idx].Quantity = quantity
	return true
}

// Clear очищает корзину.
func (c *Cart) Clear() {
	c.lines = c.lines[:0]
}

// Lines возвращает копию позиций.
func (c *Cart) Lines() []CartLine {
	out := make([]CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// Line возвращает позицию по идентификатору товара.
func (c *Cart) Line(productID string) (CartLine, bool) {
	idx := c.indexOf(productID)
	if idx < 0 {
		return CartLine{}, false
	}
	return c.lines[idx], true
}

// Len возвращает количество позиций.
func (c *Cart) Len() int {
	return len(c.lines)
}

// Total пересчитывается при каждом вызове.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// Count возвращает сумму количеств (значение бейджа корзины).
func (c *Cart) Count() int {
	var n int
	for _, line := range c.lines {
		n += line.Quantity
	}
	return n
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}
