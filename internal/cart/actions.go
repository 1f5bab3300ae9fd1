package cart

import "github.com/spraynsniff/storefront/internal/domain"

// ActionType — имя действия над корзиной (используется в событиях и метриках).
type ActionType string

const (
	ActionAdd         ActionType = "add"
	ActionRemove      ActionType = "remove"
	ActionSetQuantity ActionType = "set_quantity"
	ActionClear       ActionType = "clear"
	ActionReload      ActionType = "reload"
)

// Action — мутация, которую можно передать в Store.Dispatch.
type Action interface {
	Type() ActionType
	apply(c *domain.Cart) (changed bool, merged bool)
	productID() string
}

// AddLine добавляет позицию или суммирует количество существующей.
type AddLine struct {
	Line domain.CartLine
}

func (AddLine) Type() ActionType { return ActionAdd }

func (a AddLine) apply(c *domain.Cart) (bool, bool) {
	merged := c.Add(a.Line)
	return true, merged
}

func (a AddLine) productID() string { return a.Line.ProductID }

// RemoveLine удаляет позицию, если она есть.
type RemoveLine struct {
	ProductID string
}

func (RemoveLine) Type() ActionType { return ActionRemove }

func (a RemoveLine) apply(c *domain.Cart) (bool, bool) {
	return c.Remove(a.ProductID), false
}

func (a RemoveLine) productID() string { return a.ProductID }

// SetLineQuantity перезаписывает количество позиции как есть.
type SetLineQuantity struct {
	ProductID string
	Quantity  int
}

func (SetLineQuantity) Type() ActionType { return ActionSetQuantity }

func (a SetLineQuantity) apply(c *domain.Cart) (bool, bool) {
	return c.SetQuantity(a.ProductID, a.Quantity), false
}

func (a SetLineQuantity) productID() string { return a.ProductID }

// ClearCart очищает корзину.
type ClearCart struct{}

func (ClearCart) Type() ActionType { return ActionClear }

func (ClearCart) apply(c *domain.Cart) (bool, bool) {
	changed := c.Len() > 0
	c.Clear()
	return changed, false
}

func (ClearCart) productID() string { return "" }
