package entity

// Item is one sellable catalog entry for a vendor. Prices are whole naira.
// Variants maps an attribute name (e.g. "size") to its allowed values; an
// item with no variants is purchasable directly.
type Item struct {
	SKU        string              `json:"sku" firestore:"sku"`
	VendorID   string              `json:"vendor_id" firestore:"vendorId"`
	Name       string              `json:"name" firestore:"name"`
	Price      int64               `json:"price" firestore:"price"`
	FloorPrice int64               `json:"floor_price" firestore:"floorPrice"`
	Quantity   int                 `json:"quantity" firestore:"quantity"`
	Variants   map[string][]string `json:"variants,omitempty" firestore:"variants,omitempty"`
}

func (i *Item) HasVariants() bool {
	return len(i.Variants) > 0
}

func (i *Item) InStock() bool {
	return i.Quantity > 0
}
