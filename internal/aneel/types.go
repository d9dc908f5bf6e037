package aneel

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Well known tariff discriminators. The upstream dataset accepts any string,
// these only cover the values used by low-voltage consumer units.
const (
	SubGroupB1 = "B1"
	SubGroupB2 = "B2"
	SubGroupB3 = "B3"

	ModalityConventional = "Convencional"
	ModalityWhite        = "Branca"

	SubClassResidential     = "Residencial"
	SubClassLowIncome       = "Baixa renda"
	SubClassRural           = "Agropecuária rural"
	SubClassPublicLighting  = "Iluminação pública"
	SubClassCommercial      = "Comercial"
	SubClassIndustrial      = "Industrial"
	SubClassPublicAuthority = "Poder público"
)

const dateLayout = "2006-01-02"

var dateLayouts = []string{
	dateLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Date is a civil date as published by the datastore. The time of day and
// zone are discarded; the value is always UTC midnight.
type Date struct {
	time.Time
}

// ParseDate accepts the date and timestamp layouts the datastore emits.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}, nil
		}
	}
	return Date{}, fmt.Errorf("aneel: invalid date %q", s)
}

// MustDate is ParseDate for literals known to be valid.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("aneel: date must be a string: %w", err)
	}
	if s == nil || strings.TrimSpace(*s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// FlagActivation is one month of the tariff flag ("bandeira") series.
// Surcharge is kept verbatim in pt-BR notation, per kWh.
type FlagActivation struct {
	ID          int    `json:"_id"`
	GeneratedAt string `json:"DatGeracaoConjuntoDados"`
	Competency  Date   `json:"DatCompetencia"`
	FlagName    string `json:"NomBandeiraAcionada"`
	Surcharge   string `json:"VlrAdicionalBandeira"`
}

// TariffRecord is one applicable-tariff row. TUSD and TE are kept verbatim
// in pt-BR notation, per MWh.
type TariffRecord struct {
	ID               int    `json:"_id"`
	GeneratedAt      string `json:"DatGeracaoConjuntoDados"`
	Resolution       string `json:"DscREH"`
	AgentAlias       string `json:"SigAgente"`
	DistributorTaxID string `json:"NumCNPJDistribuidora"`
	ValidFrom        Date   `json:"DatInicioVigencia"`
	ValidTo          Date   `json:"DatFimVigencia"`
	TariffBase       string `json:"DscBaseTarifaria"`
	SubGroup         string `json:"DscSubGrupo"`
	Modality         string `json:"DscModalidadeTarifaria"`
	Class            string `json:"DscClasse"`
	SubClass         string `json:"DscSubClasse"`
	Detail           string `json:"DscDetalhe"`
	TimeOfUse        string `json:"NomPostoTarifario"`
	Unit             string `json:"DscUnidadeTerciaria"`
	AccessingAgent   string `json:"SigAgenteAcessante"`
	TUSD             string `json:"VlrTUSD"`
	TE               string `json:"VlrTE"`
}

// TariffQuery selects the applicable tariffs of one distributor. AgentAlias
// takes precedence over DistributorTaxID when both are set. An empty SubClass
// matches every sub-class.
type TariffQuery struct {
	DistributorTaxID string
	SubGroup         string
	Modality         string
	SubClass         string
	AgentAlias       string
}

func (q TariffQuery) validate() error {
	if q.SubGroup == "" || q.Modality == "" {
		return fmt.Errorf("aneel: sub-group and modality are required")
	}
	if q.DistributorTaxID == "" && q.AgentAlias == "" {
		return fmt.Errorf("aneel: distributor tax id or agent alias is required")
	}
	return nil
}

// envelope is the CKAN action response.
type envelope[T any] struct {
	Success bool `json:"success"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"__type"`
	} `json:"error,omitempty"`
	Result struct {
		Records []T `json:"records"`
		Total   int `json:"total"`
	} `json:"result"`
}
