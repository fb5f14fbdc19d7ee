package db

import (
	"database/sql"
	"fmt"
)

// BC3Stats aggregates how much of the catalogue carries BC3 metadata.
type BC3Stats struct {
	Total     int
	WithShort int
	WithLong  int
	WithType  int
}

// BC3Description holds the BC3 fields of one product.
type BC3Description struct {
	Code  string
	Short *string
	Long  *string
	Type  *string
}

// GetBC3Stats returns catalogue-wide BC3 coverage counts.
func GetBC3Stats(d *sql.DB) (BC3Stats, error) {
	var s BC3Stats
	err := d.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN bc3_short IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN bc3_long IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN bc3_type IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM products`).Scan(&s.Total, &s.WithShort, &s.WithLong, &s.WithType)
	return s, err
}

// ListProductsByBC3Type returns all products with the given BC3 type,
// ordered by code.
func ListProductsByBC3Type(d *sql.DB, bc3Type string) ([]Product, error) {
	query := fmt.Sprintf("SELECT %s FROM products WHERE bc3_type = ? ORDER BY code", productColumns)
	rows, err := d.Query(query, bc3Type)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetBC3 returns the BC3 description for a product, nil when the product
// does not exist.
func GetBC3(d *sql.DB, code string) (*BC3Description, error) {
	row := d.QueryRow(
		"SELECT code, bc3_short, bc3_long, bc3_type FROM products WHERE code = ?",
		code,
	)
	var desc BC3Description
	err := row.Scan(&desc.Code, &desc.Short, &desc.Long, &desc.Type)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &desc, nil
}
