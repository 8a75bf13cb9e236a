package enums

import "slices"

// BarterCategory classifies the item a buyer offers in exchange.
type BarterCategory string

const (
	BarterCategoryElectronics  BarterCategory = "electronics"
	BarterCategoryFurniture    BarterCategory = "furniture"
	BarterCategoryClothing     BarterCategory = "clothing"
	BarterCategoryBooks        BarterCategory = "books"
	BarterCategorySports       BarterCategory = "sports"
	BarterCategoryAppliances   BarterCategory = "appliances"
	BarterCategoryCollectibles BarterCategory = "collectibles"
	BarterCategoryOther        BarterCategory = "other"
)

var validBarterCategories = []BarterCategory{
	BarterCategoryElectronics,
	BarterCategoryFurniture,
	BarterCategoryClothing,
	BarterCategoryBooks,
	BarterCategorySports,
	BarterCategoryAppliances,
	BarterCategoryCollectibles,
	BarterCategoryOther,
}

func (b BarterCategory) String() string {
	return string(b)
}

func (b BarterCategory) IsValid() bool {
	return slices.Contains(validBarterCategories, b)
}

// ParseBarterCategory converts raw input into a BarterCategory.
func ParseBarterCategory(value string) (BarterCategory, error) {
	return parse(validBarterCategories, value, "barter category")
}
