package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtravels/backend/internal/domain/shared"
	"github.com/xtravels/backend/internal/infrastructure/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxUnwrap bounds how many pointer or valuer layers a scanned value may carry
const maxUnwrap = 4

// GormStore implements Store on a relational database through GORM.
// The same type serves as the local store and, pointed at a second
// database, as the remote master data source.
type GormStore struct {
	db       *gorm.DB
	registry *schema.Registry
}

// NewGormStore creates a store bound to db
func NewGormStore(db *gorm.DB, registry *schema.Registry) *GormStore {
	return &GormStore{db: db, registry: registry}
}

// DB returns the underlying connection (or transaction)
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Registry returns the capability metadata the store resolves entities against
func (s *GormStore) Registry() *schema.Registry {
	return s.registry
}

// Transaction runs fn in a transaction. Nested calls open a savepoint, so a
// failing inner unit of work rolls back without aborting the outer one.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, registry: s.registry})
	})
}

// Select executes a structured read
func (s *GormStore) Select(ctx context.Context, q Query) (*Result, error) {
	et, err := s.registry.Entity(q.Entity)
	if err != nil {
		return nil, err
	}

	const alias = "t0"
	b := &sqlBuilder{registry: s.registry}

	columns := q.Columns
	var hidden []string
	if len(columns) > 0 && len(q.Expand) > 0 {
		columns, hidden = withExpandColumns(et, columns, q.Expand)
	}

	selects := make([]string, 0, len(columns))
	if len(columns) == 0 {
		selects = append(selects, alias+".*")
	}
	for _, c := range columns {
		name := c.Alias()
		if name == "" {
			return nil, fmt.Errorf("computed column on %s needs an alias", et.Name)
		}
		expr, err := c.Expr.render(b, et, alias)
		if err != nil {
			return nil, err
		}
		selects = append(selects, expr+" AS "+quote(name))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if q.Distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quote(et.Table))
	sb.WriteString(" ")
	sb.WriteString(alias)

	cond, args := whereClause(alias, q.Where, q.In)
	if cond != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(cond)
	}
	if len(q.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(orderClause(alias, q.OrderBy))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	var raw []map[string]any
	if err := s.db.WithContext(ctx).Raw(sb.String(), args...).Scan(&raw).Error; err != nil {
		return nil, fmt.Errorf("select %s: %w", et.Name, translateError(err))
	}

	rows := make([]Row, len(raw))
	for i, m := range raw {
		rows[i] = normalizeRow(m)
	}

	if q.Locale != "" {
		if err := s.localize(ctx, et, rows, q.Locale); err != nil {
			return nil, err
		}
	}
	for _, row := range rows {
		for _, e := range q.Expand {
			if err := s.expand(ctx, et, row, e); err != nil {
				return nil, err
			}
		}
		for _, h := range hidden {
			delete(row, h)
		}
	}
	return &Result{Rows: rows}, nil
}

func (s *GormStore) expand(ctx context.Context, et *schema.EntityType, row Row, e Expand) error {
	comp, ok := et.Composition(e.Composition)
	if !ok {
		return fmt.Errorf("entity %s has no composition %q", et.Name, e.Composition)
	}
	where := make(Row, len(comp.ForeignKeys))
	for _, fk := range comp.ForeignKeys {
		where[fk.Target] = row[fk.Local]
	}
	res, err := s.Select(ctx, Query{
		Entity:  comp.Target,
		Columns: e.Columns,
		Where:   where,
		Expand:  e.Expand,
	})
	if err != nil {
		return err
	}
	row[e.Composition] = res.Rows
	return nil
}

// localize overlays localized columns with the texts row matching locale,
// trying the full tag before its base language.
func (s *GormStore) localize(ctx context.Context, et *schema.EntityType, rows []Row, locale string) error {
	if et.Texts == "" || len(et.Localized) == 0 {
		return nil
	}
	comp, ok := et.Composition(et.Texts)
	if !ok {
		return nil
	}
	candidates := localeCandidates(locale)
	for _, row := range rows {
		for _, loc := range candidates {
			where := Row{"locale": loc}
			for _, fk := range comp.ForeignKeys {
				where[fk.Target] = row[fk.Local]
			}
			res, err := s.Select(ctx, Query{Entity: comp.Target, Columns: Cols(et.Localized...), Where: where, Limit: 1})
			if err != nil {
				return err
			}
			text, found := res.First()
			if !found {
				continue
			}
			for _, col := range et.Localized {
				if row.Has(col) && !text.IsNull(col) {
					row[col] = text[col]
				}
			}
			break
		}
	}
	return nil
}

// Insert writes new rows together with their nested compositions
func (s *GormStore) Insert(ctx context.Context, entity string, rows []Row, opts WriteOptions) (int64, error) {
	return s.write(ctx, entity, rows, opts, false)
}

// Upsert inserts rows or replaces existing ones by key. Nested compositions
// of an upserted row replace the stored children wholesale.
func (s *GormStore) Upsert(ctx context.Context, entity string, rows []Row, opts WriteOptions) (int64, error) {
	return s.write(ctx, entity, rows, opts, true)
}

func (s *GormStore) write(ctx context.Context, entity string, rows []Row, opts WriteOptions, upsert bool) (int64, error) {
	et, err := s.registry.Entity(entity)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, row := range rows {
		n, err := s.writeRow(ctx, et, row, opts, upsert)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *GormStore) writeRow(ctx context.Context, et *schema.EntityType, row Row, opts WriteOptions, upsert bool) (int64, error) {
	flat, nested := split(et, row, opts)
	if len(flat) == 0 {
		return 0, fmt.Errorf("insert into %s: no columns", et.Name)
	}

	tx := s.db.WithContext(ctx).Table(et.Table)
	if upsert {
		conflict := clause.OnConflict{Columns: make([]clause.Column, len(et.Keys))}
		for i, k := range et.Keys {
			conflict.Columns[i] = clause.Column{Name: k}
		}
		if updates := nonKeyColumns(et, flat); len(updates) > 0 {
			conflict.DoUpdates = clause.AssignmentColumns(updates)
		} else {
			conflict.DoNothing = true
		}
		tx = tx.Clauses(conflict)
	}
	result := tx.Create(map[string]any(flat))
	if result.Error != nil {
		return 0, fmt.Errorf("write %s: %w", et.Name, translateError(result.Error))
	}
	affected := result.RowsAffected

	for _, name := range sortedKeys(nested) {
		comp, _ := et.Composition(name)
		child, err := s.registry.Entity(comp.Target)
		if err != nil {
			return affected, err
		}
		parentLink := make(Row, len(comp.ForeignKeys))
		for _, fk := range comp.ForeignKeys {
			parentLink[fk.Target] = flat[fk.Local]
		}
		if upsert {
			if _, err := s.deleteWhere(ctx, child, parentLink); err != nil {
				return affected, err
			}
		}
		for _, childRow := range nested[name] {
			for col, v := range parentLink {
				childRow[col] = v
			}
			if _, err := s.writeRow(ctx, child, childRow, opts, false); err != nil {
				return affected, err
			}
		}
	}
	return affected, nil
}

// Update changes the row identified by keys. Read-only columns are dropped
// unless opts.BypassReadOnly is set; nested compositions are ignored.
func (s *GormStore) Update(ctx context.Context, entity string, keys Row, data Row, opts WriteOptions) (int64, error) {
	et, err := s.registry.Entity(entity)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, fmt.Errorf("update %s: %w", et.Name, shared.ErrInvalidInput)
	}
	flat, _ := split(et, data, opts)
	for _, k := range et.Keys {
		delete(flat, k)
	}
	if len(flat) == 0 {
		return 0, nil
	}
	cond, args := whereClause("", keys, nil)
	result := s.db.WithContext(ctx).Table(et.Table).Where(cond, args...).Updates(map[string]any(flat))
	if result.Error != nil {
		return 0, fmt.Errorf("update %s: %w", et.Name, translateError(result.Error))
	}
	return result.RowsAffected, nil
}

// Delete removes the row identified by keys together with its compositions
func (s *GormStore) Delete(ctx context.Context, entity string, keys Row) (int64, error) {
	et, err := s.registry.Entity(entity)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, fmt.Errorf("delete %s: %w", et.Name, shared.ErrInvalidInput)
	}
	return s.deleteWhere(ctx, et, keys)
}

func (s *GormStore) deleteWhere(ctx context.Context, et *schema.EntityType, where Row) (int64, error) {
	if len(et.Compositions) > 0 {
		var locals []string
		for _, comp := range et.Compositions {
			for _, fk := range comp.ForeignKeys {
				locals = append(locals, fk.Local)
			}
		}
		parents, err := s.Select(ctx, Query{Entity: et.Name, Columns: Cols(dedupe(locals)...), Where: where})
		if err != nil {
			return 0, err
		}
		for _, comp := range et.Compositions {
			child, err := s.registry.Entity(comp.Target)
			if err != nil {
				return 0, err
			}
			for _, parent := range parents.Rows {
				link := make(Row, len(comp.ForeignKeys))
				for _, fk := range comp.ForeignKeys {
					link[fk.Target] = parent[fk.Local]
				}
				if _, err := s.deleteWhere(ctx, child, link); err != nil {
					return 0, err
				}
			}
		}
	}

	cond, args := whereClause("", where, nil)
	result := s.db.WithContext(ctx).Exec("DELETE FROM "+quote(et.Table)+" WHERE "+cond, args...)
	if result.Error != nil {
		return 0, fmt.Errorf("delete %s: %w", et.Name, translateError(result.Error))
	}
	return result.RowsAffected, nil
}

// split separates plain columns from nested composition rows and drops
// read-only columns unless bypassed.
func split(et *schema.EntityType, row Row, opts WriteOptions) (Row, map[string][]Row) {
	flat := make(Row, len(row))
	nested := make(map[string][]Row)
	for col, v := range row {
		if _, ok := et.Composition(col); ok {
			if children := row.Rows(col); len(children) > 0 {
				nested[col] = children
			}
			continue
		}
		if !opts.BypassReadOnly && et.IsReadOnly(col) {
			continue
		}
		flat[col] = v
	}
	return flat, nested
}

func nonKeyColumns(et *schema.EntityType, row Row) []string {
	keys := make(map[string]bool, len(et.Keys))
	for _, k := range et.Keys {
		keys[k] = true
	}
	var cols []string
	for col := range row {
		if !keys[col] {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return cols
}

func withExpandColumns(et *schema.EntityType, columns []Column, expands []Expand) ([]Column, []string) {
	projected := make(map[string]bool, len(columns))
	for _, c := range columns {
		projected[c.Alias()] = true
	}
	var hidden []string
	for _, e := range expands {
		comp, ok := et.Composition(e.Composition)
		if !ok {
			continue
		}
		for _, fk := range comp.ForeignKeys {
			if !projected[fk.Local] {
				projected[fk.Local] = true
				columns = append(columns, Col(fk.Local))
				hidden = append(hidden, fk.Local)
			}
		}
	}
	return columns, hidden
}

func whereClause(alias string, where Row, in *In) (string, []any) {
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	var conds []string
	var args []any
	for _, col := range sortedKeys(where) {
		v := where[col]
		if v == nil {
			conds = append(conds, prefix+quote(col)+" IS NULL")
			continue
		}
		conds = append(conds, prefix+quote(col)+" = ?")
		args = append(args, v)
	}
	if in != nil {
		switch {
		case len(in.Values) == 0:
			conds = append(conds, "1 = 0")
		case len(in.Columns) == 1:
			values := make([]any, len(in.Values))
			for i, tuple := range in.Values {
				values[i] = tuple[0]
			}
			conds = append(conds, prefix+quote(in.Columns[0])+" IN ?")
			args = append(args, values)
		default:
			alternatives := make([]string, len(in.Values))
			for i, tuple := range in.Values {
				parts := make([]string, len(in.Columns))
				for j, col := range in.Columns {
					parts[j] = prefix + quote(col) + " = ?"
					args = append(args, tuple[j])
				}
				alternatives[i] = "(" + strings.Join(parts, " AND ") + ")"
			}
			conds = append(conds, "("+strings.Join(alternatives, " OR ")+")")
		}
	}
	return strings.Join(conds, " AND "), args
}

func orderClause(alias string, orderBy []string) string {
	parts := make([]string, len(orderBy))
	for i, o := range orderBy {
		col, dir, _ := strings.Cut(strings.TrimSpace(o), " ")
		parts[i] = alias + "." + quote(col)
		if strings.EqualFold(strings.TrimSpace(dir), "desc") {
			parts[i] += " DESC"
		}
	}
	return strings.Join(parts, ", ")
}

func normalizeRow(m map[string]any) Row {
	row := make(Row, len(m))
	for k, v := range m {
		row[k] = normalizeValue(v)
	}
	return row
}

// normalizeValue unwraps what drivers hand back for untyped columns
// (expressions, aggregates, uuid and numeric columns on sqlite) into plain values.
func normalizeValue(v any) any {
	for range maxUnwrap {
		switch t := v.(type) {
		case nil:
			return nil
		case []byte:
			return string(t)
		case sql.RawBytes:
			return string(t)
		case decimal.Decimal, uuid.UUID, time.Time:
			return t
		case *any:
			if t == nil {
				return nil
			}
			v = *t
			continue
		}
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return nil
			}
			v = rv.Elem().Interface()
			continue
		}
		if valuer, ok := v.(driver.Valuer); ok {
			plain, err := valuer.Value()
			if err != nil {
				return v
			}
			v = plain
			continue
		}
		return v
	}
	return v
}

func localeCandidates(locale string) []string {
	locale = strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	if locale == "" {
		return nil
	}
	candidates := []string{locale}
	if base, _, found := strings.Cut(locale, "-"); found && base != "" {
		candidates = append(candidates, base)
	}
	return candidates
}

func translateError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", shared.ErrConcurrencyConflict, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

var _ Store = (*GormStore)(nil)
