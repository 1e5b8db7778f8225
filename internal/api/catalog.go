package api

// Product は商品一覧の1件。
type Product struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Price    int    `json:"price"`
	Category string `json:"category"`
	Stock    int    `json:"stock"`
}

// catalog は固定の商品一覧。価格はBDT。
var catalog = []Product{
	{ID: 1, Name: "Samsung Galaxy S23", Price: 89999, Category: "Electronics", Stock: 50},
	{ID: 2, Name: "iPhone 15 Pro", Price: 149999, Category: "Electronics", Stock: 30},
	{ID: 3, Name: "Sony WH-1000XM5", Price: 29999, Category: "Accessories", Stock: 100},
}

// Products は商品一覧のコピーを返す。
func Products() []Product {
	products := make([]Product, len(catalog))
	copy(products, catalog)
	return products
}
