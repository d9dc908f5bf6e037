package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bher20/kwhmedio/internal/aneel"
	"github.com/bher20/kwhmedio/internal/log"
	"github.com/bher20/kwhmedio/internal/rates"
)

var errBadRequest = errors.New("bad request")

// CalcRequest is the body of POST /calc. GET /calc takes the same fields as
// query parameters. Dates are YYYY-MM-DD; taxes are fractions (0.19) and
// default to zero.
type CalcRequest struct {
	Start       string          `json:"start"`
	End         string          `json:"end"`
	CNPJ        string          `json:"cnpj,omitempty"`
	SubGroup    string          `json:"subgroup"`
	Modality    string          `json:"modality"`
	SubClass    string          `json:"subclass,omitempty"`
	Agent       string          `json:"agent,omitempty"`
	Distributor string          `json:"distributor,omitempty"`
	ICMS        decimal.Decimal `json:"icms"`
	PIS         decimal.Decimal `json:"pis"`
	COFINS      decimal.Decimal `json:"cofins"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func handleCalc(calc Calculator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			req CalcRequest
			err error
		)
		switch r.Method {
		case http.MethodGet:
			req, err = calcRequestFromQuery(r.URL.Query())
		case http.MethodPost:
			dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
			dec.DisallowUnknownFields()
			if derr := dec.Decode(&req); derr != nil {
				err = fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, derr)
			}
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}

		params, err := req.Params()
		if err != nil {
			writeError(w, r, err)
			return
		}

		res, err := calc.Calculate(r.Context(), params)
		if err != nil {
			writeError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}
}

func calcRequestFromQuery(q url.Values) (CalcRequest, error) {
	req := CalcRequest{
		Start:       q.Get("start"),
		End:         q.Get("end"),
		CNPJ:        q.Get("cnpj"),
		SubGroup:    q.Get("subgroup"),
		Modality:    q.Get("modality"),
		SubClass:    q.Get("subclass"),
		Agent:       q.Get("agent"),
		Distributor: q.Get("distributor"),
	}
	for _, f := range []struct {
		name string
		dst  *decimal.Decimal
	}{{"icms", &req.ICMS}, {"pis", &req.PIS}, {"cofins", &req.COFINS}} {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return req, fmt.Errorf("%w: %s must be a decimal fraction", errBadRequest, f.name)
		}
		*f.dst = v
	}
	return req, nil
}

// Params validates the request and converts it into calculation parameters.
func (req CalcRequest) Params() (rates.CalcParams, error) {
	if req.Start == "" || req.End == "" {
		return rates.CalcParams{}, fmt.Errorf("%w: start and end are required", errBadRequest)
	}
	start, err := aneel.ParseDate(req.Start)
	if err != nil {
		return rates.CalcParams{}, fmt.Errorf("%w: start: %v", errBadRequest, err)
	}
	end, err := aneel.ParseDate(req.End)
	if err != nil {
		return rates.CalcParams{}, fmt.Errorf("%w: end: %v", errBadRequest, err)
	}
	return rates.CalcParams{
		Start:            start.Time,
		End:              end.Time,
		DistributorTaxID: normalizeTaxID(req.CNPJ),
		SubGroup:         strings.TrimSpace(req.SubGroup),
		Modality:         strings.TrimSpace(req.Modality),
		SubClass:         strings.TrimSpace(req.SubClass),
		AgentAlias:       strings.TrimSpace(req.Agent),
		Distributor:      strings.TrimSpace(req.Distributor),
		Taxes: rates.Taxes{
			ICMS:   req.ICMS,
			PIS:    req.PIS,
			COFINS: req.COFINS,
		},
	}, nil
}

// normalizeTaxID accepts a CNPJ with or without its usual punctuation
// (04.368.898/0001-06).
func normalizeTaxID(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, rates.ErrInvalidWindow),
		errors.Is(err, rates.ErrInvalidTaxes),
		errors.Is(err, rates.ErrInvalidParams),
		errors.Is(err, rates.ErrUnknownDistributor):
		return http.StatusBadRequest
	case errors.Is(err, rates.ErrNoActivationCoverage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, aneel.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Ctx(r.Context()).Error("request failed", "error", err)
		msg = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Error:     msg,
		RequestID: w.Header().Get(requestIDHeader),
	})
}
