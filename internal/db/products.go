package db

import (
	"database/sql"
	"fmt"
)

// Product is one catalogue row.
type Product struct {
	Code             string
	Brand            *string
	Reference        *string
	Description      *string
	Price            *float64
	ImageURL         *string
	DatasheetURL     *string
	Discontinued     bool
	Family           *string
	ShortDescription *string
	BC3Short         *string
	BC3Long          *string
	BC3Type          *string
	BC3ProcessedAt   *int64
}

// ProductFilter narrows ListProducts results. Zero values mean "no filter".
type ProductFilter struct {
	Brand     string
	Family    string
	Search    string // substring match on description
	WithBC3   bool
	WithImage bool
	Limit     int
	Offset    int
}

const productColumns = `code, brand, reference, description, price, image_url,
	datasheet_url, discontinued, family, short_description,
	bc3_short, bc3_long, bc3_type, bc3_processed_at`

// ListProducts returns a page of products matching the filter plus the total
// match count before pagination. Limit is clamped to [1, 500], defaulting
// to 100.
func ListProducts(d *sql.DB, f ProductFilter) ([]Product, int, error) {
	where := "WHERE 1=1"
	var params []any

	if f.Brand != "" {
		where += " AND brand = ?"
		params = append(params, f.Brand)
	}
	if f.Family != "" {
		where += " AND family = ?"
		params = append(params, f.Family)
	}
	if f.Search != "" {
		where += " AND description LIKE ?"
		params = append(params, "%"+f.Search+"%")
	}
	if f.WithBC3 {
		where += " AND bc3_short IS NOT NULL"
	}
	if f.WithImage {
		where += " AND image_url IS NOT NULL"
	}

	var total int
	if err := d.QueryRow("SELECT COUNT(*) FROM products "+where, params...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("SELECT %s FROM products %s ORDER BY code LIMIT ? OFFSET ?", productColumns, where)
	rows, err := d.Query(query, append(params, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// GetProduct retrieves a product by code, returning nil when absent.
func GetProduct(d *sql.DB, code string) (*Product, error) {
	row := d.QueryRow(fmt.Sprintf("SELECT %s FROM products WHERE code = ?", productColumns), code)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (Product, error) {
	var p Product
	var discontinued int
	err := s.Scan(&p.Code, &p.Brand, &p.Reference, &p.Description, &p.Price,
		&p.ImageURL, &p.DatasheetURL, &discontinued, &p.Family, &p.ShortDescription,
		&p.BC3Short, &p.BC3Long, &p.BC3Type, &p.BC3ProcessedAt)
	if err != nil {
		return Product{}, err
	}
	p.Discontinued = discontinued != 0
	return p, nil
}
