package aneel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTariffStatement(t *testing.T) {
	tests := []struct {
		name string
		q    TariffQuery
		want string
	}{
		{
			name: "tax id without sub-class",
			q:    TariffQuery{DistributorTaxID: "10835932000108", SubGroup: "B1", Modality: "Branca"},
			want: `SELECT * FROM "r" WHERE "DscSubGrupo" = 'B1' AND "DscModalidadeTarifaria" = 'Branca' AND "DscBaseTarifaria" = 'Tarifa de Aplicação' AND "DscDetalhe" = 'Não se aplica' AND "NumCNPJDistribuidora" = '10835932000108'`,
		},
		{
			name: "alias wins over tax id",
			q:    TariffQuery{DistributorTaxID: "10835932000108", AgentAlias: "Neoenergia PE", SubGroup: "B1", Modality: "Convencional", SubClass: "Residencial"},
			want: `SELECT * FROM "r" WHERE "DscSubGrupo" = 'B1' AND "DscModalidadeTarifaria" = 'Convencional' AND "DscSubClasse" = 'Residencial' AND "DscBaseTarifaria" = 'Tarifa de Aplicação' AND "DscDetalhe" = 'Não se aplica' AND "SigAgente" = 'Neoenergia PE'`,
		},
		{
			name: "quotes stay inside the literal",
			q:    TariffQuery{AgentAlias: "X' OR '1'='1", SubGroup: "B1", Modality: "Convencional"},
			want: `SELECT * FROM "r" WHERE "DscSubGrupo" = 'B1' AND "DscModalidadeTarifaria" = 'Convencional' AND "DscBaseTarifaria" = 'Tarifa de Aplicação' AND "DscDetalhe" = 'Não se aplica' AND "SigAgente" = 'X'' OR ''1''=''1'`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tariffStatement("r", tt.q).String())
		})
	}
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `'D''Oeste'`, quoteLiteral("D'Oeste"))
	assert.Equal(t, `'ab'`, quoteLiteral("a\x00b"))
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
	assert.Equal(t, `SELECT * FROM "t" LIMIT 10 OFFSET 30`, selectFrom("t").page(10, 30).String())
}

func TestTariffsCacheKey(t *testing.T) {
	assert.Equal(t, "tarifas-aplicacao:04368898000106:B1:Convencional:null:null",
		TariffsCacheKey(TariffQuery{DistributorTaxID: "04368898000106", SubGroup: "B1", Modality: "Convencional"}))
	assert.Equal(t, "tarifas-aplicacao:04368898000106:B1:Branca:Residencial:COPEL-DIS",
		TariffsCacheKey(TariffQuery{DistributorTaxID: "04368898000106", SubGroup: "B1", Modality: "Branca", SubClass: "Residencial", AgentAlias: "COPEL-DIS"}))
	assert.Equal(t, "bandeiras-acionadas", FlagsCacheKey())
}
