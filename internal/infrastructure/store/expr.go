package store

import (
	"fmt"
	"strings"

	"github.com/xtravels/backend/internal/infrastructure/schema"
)

// Expr is a computed value in a projection. Expressions are rendered to SQL
// by the GORM store; remote sources only accept plain columns.
type Expr interface {
	render(b *sqlBuilder, et *schema.EntityType, alias string) (string, error)
}

type ref struct{ column string }

type orZero struct{ inner Expr }

type plus struct{ left, right Expr }

type maxOf struct{ inner Expr }

type sumOf struct {
	composition string
	inner       Expr
}

// Ref references a column of the current entity
func Ref(column string) Expr { return ref{column: column} }

// OrZero coalesces a null value to zero
func OrZero(e Expr) Expr { return orZero{inner: e} }

// Plus adds two expressions
func Plus(left, right Expr) Expr { return plus{left: left, right: right} }

// MaxOf aggregates the maximum of an expression over the matched rows
func MaxOf(e Expr) Expr { return maxOf{inner: e} }

// SumOf sums an expression over the children of a composition of the current row.
// The inner expression is evaluated against the child entity.
func SumOf(composition string, e Expr) Expr { return sumOf{composition: composition, inner: e} }

func (r ref) render(_ *sqlBuilder, _ *schema.EntityType, alias string) (string, error) {
	return alias + "." + quote(r.column), nil
}

func (o orZero) render(b *sqlBuilder, et *schema.EntityType, alias string) (string, error) {
	inner, err := o.inner.render(b, et, alias)
	if err != nil {
		return "", err
	}
	return "COALESCE(" + inner + ", 0)", nil
}

func (p plus) render(b *sqlBuilder, et *schema.EntityType, alias string) (string, error) {
	l, err := p.left.render(b, et, alias)
	if err != nil {
		return "", err
	}
	r, err := p.right.render(b, et, alias)
	if err != nil {
		return "", err
	}
	return "(" + l + " + " + r + ")", nil
}

func (m maxOf) render(b *sqlBuilder, et *schema.EntityType, alias string) (string, error) {
	inner, err := m.inner.render(b, et, alias)
	if err != nil {
		return "", err
	}
	return "MAX(" + inner + ")", nil
}

func (s sumOf) render(b *sqlBuilder, et *schema.EntityType, alias string) (string, error) {
	comp, ok := et.Composition(s.composition)
	if !ok {
		return "", fmt.Errorf("entity %s has no composition %q", et.Name, s.composition)
	}
	child, err := b.registry.Entity(comp.Target)
	if err != nil {
		return "", err
	}
	childAlias := b.nextAlias()
	inner, err := s.inner.render(b, child, childAlias)
	if err != nil {
		return "", err
	}
	conds := make([]string, len(comp.ForeignKeys))
	for i, fk := range comp.ForeignKeys {
		conds[i] = childAlias + "." + quote(fk.Target) + " = " + alias + "." + quote(fk.Local)
	}
	return fmt.Sprintf("(SELECT SUM(%s) FROM %s %s WHERE %s)",
		inner, quote(child.Table), childAlias, strings.Join(conds, " AND ")), nil
}

type sqlBuilder struct {
	registry *schema.Registry
	aliases  int
}

func (b *sqlBuilder) nextAlias() string {
	b.aliases++
	return fmt.Sprintf("t%d", b.aliases)
}

func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
