package db

import "database/sql"

// FamilyStats aggregates catalogue counts for one family.
type FamilyStats struct {
	Family       string
	Products     int
	WithBC3      int
	WithImage    int
	Discontinued int
}

// ListFamilies returns the distinct family names, sorted.
func ListFamilies(d *sql.DB) ([]string, error) {
	rows, err := d.Query("SELECT DISTINCT family FROM products WHERE family IS NOT NULL ORDER BY family")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var families []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		families = append(families, f)
	}
	return families, rows.Err()
}

const familyStatsQuery = `
	SELECT
		family,
		COUNT(*) AS products,
		SUM(CASE WHEN bc3_short IS NOT NULL THEN 1 ELSE 0 END) AS with_bc3,
		SUM(CASE WHEN image_url IS NOT NULL THEN 1 ELSE 0 END) AS with_image,
		SUM(CASE WHEN discontinued = 1 THEN 1 ELSE 0 END) AS discontinued
	FROM products
	WHERE family IS NOT NULL`

// ListFamilyStats returns aggregate counts for every family, largest first.
func ListFamilyStats(d *sql.DB) ([]FamilyStats, error) {
	rows, err := d.Query(familyStatsQuery + " GROUP BY family ORDER BY products DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []FamilyStats
	for rows.Next() {
		var s FamilyStats
		if err := rows.Scan(&s.Family, &s.Products, &s.WithBC3, &s.WithImage, &s.Discontinued); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// GetFamilyStats returns aggregate counts for one family, nil when the
// family has no products.
func GetFamilyStats(d *sql.DB, family string) (*FamilyStats, error) {
	row := d.QueryRow(familyStatsQuery+" AND family = ? GROUP BY family", family)
	var s FamilyStats
	err := row.Scan(&s.Family, &s.Products, &s.WithBC3, &s.WithImage, &s.Discontinued)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
