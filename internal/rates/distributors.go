package rates

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/bher20/kwhmedio/internal/aneel"
)

// Profile is one tariff selector a distributor's customers commonly bill
// under. The warm-up job refreshes the cache for each of them.
type Profile struct {
	SubGroup string `json:"subGroup"`
	Modality string `json:"modality"`
	SubClass string `json:"subClass,omitempty"`
}

type DistributorDescriptor struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	TaxID      string    `json:"taxId"`
	AgentAlias string    `json:"agentAlias,omitempty"`
	Profiles   []Profile `json:"profiles,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

// Query builds the tariff selector for p.
func (d DistributorDescriptor) Query(p Profile) aneel.TariffQuery {
	return aneel.TariffQuery{
		DistributorTaxID: d.TaxID,
		AgentAlias:       d.AgentAlias,
		SubGroup:         p.SubGroup,
		Modality:         p.Modality,
		SubClass:         p.SubClass,
	}
}

const distributorsEnv = "KWHMEDIO_DISTRIBUTORS_JSON"

func defaultDistributors() []DistributorDescriptor {
	residential := []Profile{
		{SubGroup: aneel.SubGroupB1, Modality: aneel.ModalityConventional, SubClass: aneel.SubClassResidential},
		{SubGroup: aneel.SubGroupB1, Modality: aneel.ModalityWhite, SubClass: aneel.SubClassResidential},
		{SubGroup: aneel.SubGroupB3, Modality: aneel.ModalityConventional},
	}
	return []DistributorDescriptor{
		{
			Key:      "copel",
			Name:     "COPEL Distribuição",
			TaxID:    "04368898000106",
			Profiles: residential,
			Notes:    "Paraná",
		},
		{
			Key:        "neoenergia-pe",
			Name:       "Neoenergia Pernambuco",
			TaxID:      "10835932000108",
			AgentAlias: "Neoenergia PE",
			Profiles:   residential,
			Notes:      "Pernambuco, published under the agent alias",
		},
		{
			Key:      "cemig",
			Name:     "CEMIG Distribuição",
			TaxID:    "06981180000116",
			Profiles: residential,
			Notes:    "Minas Gerais",
		},
	}
}

// Distributors returns the known distributors. KWHMEDIO_DISTRIBUTORS_JSON
// replaces the built-in list when it holds a non-empty JSON array.
func Distributors() []DistributorDescriptor {
	raw := os.Getenv(distributorsEnv)
	if raw == "" {
		return defaultDistributors()
	}
	var out []DistributorDescriptor
	if err := json.Unmarshal([]byte(raw), &out); err != nil || len(out) == 0 {
		return defaultDistributors()
	}
	return out
}

// GetDistributor looks a distributor up by key, ignoring case.
func GetDistributor(key string) (DistributorDescriptor, bool) {
	for _, d := range Distributors() {
		if strings.EqualFold(d.Key, key) {
			return d, true
		}
	}
	return DistributorDescriptor{}, false
}
