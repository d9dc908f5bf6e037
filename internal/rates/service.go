package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bher20/kwhmedio/internal/aneel"
	"github.com/bher20/kwhmedio/internal/log"
	"github.com/bher20/kwhmedio/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Source provides the two upstream datasets. *aneel.Client implements it.
type Source interface {
	FlagActivations(ctx context.Context) ([]aneel.FlagActivation, error)
	ApplicableTariffs(ctx context.Context, q aneel.TariffQuery) ([]aneel.TariffRecord, error)
}

// Service computes billing-period weighted average tariffs.
type Service struct {
	src Source
}

func NewService(src Source) *Service {
	return &Service{src: src}
}

// Calculate reconciles the flag series and the tariff schedules over the
// window in p. Both datasets are fetched concurrently; if either fails the
// whole calculation fails.
func (s *Service) Calculate(ctx context.Context, p CalcParams) (*CalcResult, error) {
	started := time.Now()
	res, err := s.calculate(ctx, p)
	metrics.ObserveCalculation(started, outcome(err))
	if err != nil {
		log.Ctx(ctx).Warn("calculation failed", "error", err)
		return nil, err
	}
	return res, nil
}

func (s *Service) calculate(ctx context.Context, p CalcParams) (*CalcResult, error) {
	p, err := resolveDistributor(p)
	if err != nil {
		return nil, err
	}
	if err := validateSelector(p); err != nil {
		return nil, err
	}
	billedDays, err := BilledDays(p.Start, p.End)
	if err != nil {
		return nil, err
	}
	if err := p.Taxes.Validate(); err != nil {
		return nil, err
	}
	start, end := civil(p.Start), civil(p.End)

	q := aneel.TariffQuery{
		DistributorTaxID: p.DistributorTaxID,
		SubGroup:         p.SubGroup,
		Modality:         p.Modality,
		SubClass:         p.SubClass,
		AgentAlias:       p.AgentAlias,
	}

	var (
		incidences []FlagIncidence
		blend      TariffBlend
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		series, err := s.src.FlagActivations(gctx)
		if err != nil {
			return fmt.Errorf("flag activations: %w", err)
		}
		incidences, err = FlagIncidences(series, start, end)
		return err
	})
	g.Go(func() error {
		records, err := s.src.ApplicableTariffs(gctx, q)
		if err != nil {
			return fmt.Errorf("applicable tariffs: %w", err)
		}
		blend, err = BlendTariffs(records, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	flagSurcharge := BlendedFlagSurcharge(incidences, billedDays)

	log.Ctx(ctx).Debug("calculated weighted average",
		"start", start.Format(time.DateOnly),
		"end", end.Format(time.DateOnly),
		"billed_days", billedDays,
		"tariff_days", blend.Days,
		"flag_months", len(incidences),
	)

	return &CalcResult{
		TUSD:                   blend.TUSD.Round(tariffPlaces),
		TE:                     blend.TE.Round(tariffPlaces),
		TUSDWithTaxes:          GrossUp(blend.TUSD, p.Taxes).Round(tariffPlaces),
		TEWithTaxes:            GrossUp(blend.TE, p.Taxes).Round(tariffPlaces),
		BilledDays:             billedDays,
		Flags:                  incidences,
		FlagSurcharge:          flagSurcharge.Round(flagPlaces),
		FlagSurchargeWithTaxes: GrossUp(flagSurcharge, p.Taxes).Round(flagPlaces),
	}, nil
}

// resolveDistributor fills the tax id and alias from the registry when
// p names a distributor. Explicit values win.
func resolveDistributor(p CalcParams) (CalcParams, error) {
	if p.Distributor == "" {
		return p, nil
	}
	d, ok := GetDistributor(p.Distributor)
	if !ok {
		return p, fmt.Errorf("%w: %s", ErrUnknownDistributor, p.Distributor)
	}
	if p.DistributorTaxID == "" {
		p.DistributorTaxID = d.TaxID
	}
	if p.AgentAlias == "" {
		p.AgentAlias = d.AgentAlias
	}
	return p, nil
}

func validateSelector(p CalcParams) error {
	switch {
	case p.SubGroup == "":
		return fmt.Errorf("%w: sub-group is required", ErrInvalidParams)
	case p.Modality == "":
		return fmt.Errorf("%w: modality is required", ErrInvalidParams)
	case p.DistributorTaxID == "" && p.AgentAlias == "":
		return fmt.Errorf("%w: distributor tax id, agent alias or distributor key is required", ErrInvalidParams)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidWindow), errors.Is(err, ErrInvalidTaxes),
		errors.Is(err, ErrInvalidParams), errors.Is(err, ErrUnknownDistributor):
		return "invalid"
	case errors.Is(err, ErrNoActivationCoverage):
		return "no_coverage"
	case errors.Is(err, aneel.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "error"
	}
}
