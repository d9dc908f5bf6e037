package aneel

import (
	"strconv"
	"strings"
)

const (
	flagsCacheKey         = "bandeiras-acionadas"
	tariffsCacheKeyPrefix = "tarifas-aplicacao"

	tariffBaseApplication = "Tarifa de Aplicação"
	tariffDetailNone      = "Não se aplica"
)

// statement renders a SELECT for datastore_search_sql. The endpoint only
// accepts a SQL string, so bound values are written as quoted literals and
// can never terminate the literal they are placed in.
type statement struct {
	table  string
	where  []string
	limit  int
	offset int
}

func selectFrom(table string) *statement {
	return &statement{table: table}
}

func (s *statement) whereEq(column, value string) *statement {
	s.where = append(s.where, quoteIdent(column)+" = "+quoteLiteral(value))
	return s
}

func (s *statement) page(limit, offset int) *statement {
	s.limit = limit
	s.offset = offset
	return s
}

func (s *statement) String() string {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(quoteIdent(s.table))
	if len(s.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(s.where, " AND "))
	}
	if s.limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(s.limit))
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(s.offset))
	}
	return b.String()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	// NUL cannot appear in a postgres text literal
	s = strings.ReplaceAll(s, "\x00", "")
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func tariffStatement(resourceID string, q TariffQuery) *statement {
	s := selectFrom(resourceID).
		whereEq("DscSubGrupo", q.SubGroup).
		whereEq("DscModalidadeTarifaria", q.Modality)
	if q.SubClass != "" {
		s.whereEq("DscSubClasse", q.SubClass)
	}
	s.whereEq("DscBaseTarifaria", tariffBaseApplication).
		whereEq("DscDetalhe", tariffDetailNone)
	if q.AgentAlias != "" {
		s.whereEq("SigAgente", q.AgentAlias)
	} else {
		s.whereEq("NumCNPJDistribuidora", q.DistributorTaxID)
	}
	return s
}

// TariffsCacheKey is the snapshot key of a tariff query. Absent sub-class
// and alias are encoded as "null".
func TariffsCacheKey(q TariffQuery) string {
	return strings.Join([]string{
		tariffsCacheKeyPrefix,
		q.DistributorTaxID,
		q.SubGroup,
		q.Modality,
		orNull(q.SubClass),
		orNull(q.AgentAlias),
	}, ":")
}

// FlagsCacheKey is the snapshot key of the flag activation series.
func FlagsCacheKey() string {
	return flagsCacheKey
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}
