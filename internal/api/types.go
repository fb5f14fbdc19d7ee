// Package api defines the wire types of the catalogue API.
package api

// Product is the JSON shape of one catalogue entry.
type Product struct {
	Code             string   `json:"code"`
	Brand            *string  `json:"brand"`
	Reference        *string  `json:"reference"`
	Description      *string  `json:"description"`
	Price            *float64 `json:"price"`
	ImageURL         *string  `json:"image_url"`
	DatasheetURL     *string  `json:"datasheet_url"`
	Discontinued     bool     `json:"discontinued"`
	Family           *string  `json:"family"`
	ShortDescription *string  `json:"short_description"`
	BC3Short         *string  `json:"bc3_short,omitempty"`
	BC3Long          *string  `json:"bc3_long,omitempty"`
	BC3Type          *string  `json:"bc3_type,omitempty"`
}

// ListProductsResponse is a page of products with the total match count.
type ListProductsResponse struct {
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
	Products []Product `json:"products"`
}

// ListFamiliesResponse enumerates family names.
type ListFamiliesResponse struct {
	Families []string `json:"families"`
}

// FamilyStats aggregates catalogue counts for a family.
type FamilyStats struct {
	Family       string `json:"family"`
	Products     int    `json:"products"`
	WithBC3      int    `json:"with_bc3"`
	WithImage    int    `json:"with_image"`
	Discontinued int    `json:"discontinued"`
}

// BC3Stats reports catalogue-wide BC3 metadata coverage.
type BC3Stats struct {
	Total     int `json:"total"`
	WithShort int `json:"with_short_description"`
	WithLong  int `json:"with_long_description"`
	WithType  int `json:"with_product_type"`
}

// BC3Description holds the BC3 fields of one product.
type BC3Description struct {
	Code  string  `json:"code"`
	Short *string `json:"short_description"`
	Long  *string `json:"long_description"`
	Type  *string `json:"product_type"`
}

// BC3TypeResponse lists products of one BC3 type.
type BC3TypeResponse struct {
	Type     string    `json:"type"`
	Total    int       `json:"total"`
	Products []Product `json:"products"`
}

// ListBansResponse enumerates actively banned IPs.
type ListBansResponse struct {
	Bans []string `json:"bans"`
}

// UnbanResponse reports the outcome of removing a ban.
type UnbanResponse struct {
	IP      string `json:"ip"`
	Removed bool   `json:"removed"`
}

// InfoResponse is the public root endpoint payload.
type InfoResponse struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
	Status      string `json:"status"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Environment string `json:"environment"`
}

// ErrorResponse carries a rejection or failure detail message.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
