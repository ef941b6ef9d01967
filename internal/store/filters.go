package store

import (
	"context"
	"fmt"

	"github.com/franz/music-shelver/internal/util"
)

// Hierarchy is one level of a custom directory layout
type Hierarchy struct {
	ID       int64
	Name     string
	Priority int
}

// FilterValue is the value a file contributes to a hierarchy level
type FilterValue struct {
	HierarchyID int64
	FileHash    string
	Value       string
}

// EnsureHierarchy registers a hierarchy level, updating its priority if it
// already exists, and returns its ID
func (q *Queries) EnsureHierarchy(ctx context.Context, name string, priority int) (int64, error) {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO filter_hierarchies (name, priority) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET priority = excluded.priority
	`, name, priority)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to register hierarchy %q: %v", util.ErrPersistence, name, err)
	}

	var id int64
	if err := q.db.QueryRowContext(ctx,
		`SELECT id FROM filter_hierarchies WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read hierarchy %q: %w", name, err)
	}
	return id, nil
}

// ListHierarchies returns all hierarchy levels ordered by priority
func (q *Queries) ListHierarchies(ctx context.Context) ([]*Hierarchy, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, priority FROM filter_hierarchies ORDER BY priority, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hierarchies: %w", err)
	}
	defer rows.Close()

	var out []*Hierarchy
	for rows.Next() {
		var h Hierarchy
		if err := rows.Scan(&h.ID, &h.Name, &h.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan hierarchy: %w", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// InsertFilterValue stores the value a file has for a hierarchy level
func (q *Queries) InsertFilterValue(ctx context.Context, v *FilterValue) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO filter_values (hierarchy_id, file_hash, value) VALUES (?, ?, ?)
		ON CONFLICT(hierarchy_id, file_hash) DO UPDATE SET value = excluded.value
	`, v.HierarchyID, v.FileHash, v.Value)
	if err != nil {
		return fmt.Errorf("%w: failed to store filter value: %v", util.ErrPersistence, err)
	}
	return nil
}

// ListFilterValues returns a file's values in hierarchy priority order
func (q *Queries) ListFilterValues(ctx context.Context, hash string) ([]*FilterValue, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT v.hierarchy_id, v.file_hash, v.value
		FROM filter_values v
		JOIN filter_hierarchies h ON h.id = v.hierarchy_id
		WHERE v.file_hash = ?
		ORDER BY h.priority, h.id
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to list filter values: %w", err)
	}
	defer rows.Close()

	var out []*FilterValue
	for rows.Next() {
		var v FilterValue
		if err := rows.Scan(&v.HierarchyID, &v.FileHash, &v.Value); err != nil {
			return nil, fmt.Errorf("failed to scan filter value: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}
