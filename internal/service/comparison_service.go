package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sitiograph/sitio-profile-api/internal/dto"
	"github.com/sitiograph/sitio-profile-api/internal/models"
	"github.com/sitiograph/sitio-profile-api/internal/repository"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
)

// metricDef describes one comparable metric: how to extract it from a yearly
// profile and which direction counts as better.
type metricDef struct {
	key            string
	label          string
	higherIsBetter bool
	extract        func(*models.YearlyProfile) float64
}

var metricCatalog = map[models.MetricGroup][]metricDef{
	models.GroupDemographics: {
		{"population", "Population", true, func(p *models.YearlyProfile) float64 { return float64(p.Demographics.Population) }},
		{"households", "Households", true, func(p *models.YearlyProfile) float64 { return float64(p.Demographics.Households) }},
		{"unemployment_rate", "Unemployment rate", false, func(p *models.YearlyProfile) float64 {
			return Percentage(float64(p.Demographics.Unemployed), float64(p.Demographics.LaborForce))
		}},
		{"voter_share", "Registered voter share", true, func(p *models.YearlyProfile) float64 {
			return Percentage(float64(p.Demographics.RegisteredVoters), float64(p.Demographics.Population))
		}},
	},
	models.GroupUtilities: {
		{"electricity_rate", "Electricity coverage", true, func(p *models.YearlyProfile) float64 {
			return Percentage(float64(p.Utilities.HouseholdsWithElectricity), float64(p.Demographics.Households))
		}},
		{"water_rate", "Water coverage", true, func(p *models.YearlyProfile) float64 {
			return Percentage(float64(p.Utilities.HouseholdsWithWater), float64(p.Demographics.Households))
		}},
		{"internet_rate", "Internet coverage", true, func(p *models.YearlyProfile) float64 {
			return Percentage(float64(p.Utilities.HouseholdsWithInternet), float64(p.Demographics.Households))
		}},
		{"sanitation_rate", "Sanitation coverage", true, func(p *models.YearlyProfile) float64 {
			return Percentage(float64(p.Utilities.HouseholdsWithToilet), float64(p.Demographics.Households))
		}},
		{"mobile_signal", "Mobile signal tier", true, func(p *models.YearlyProfile) float64 { return float64(p.Utilities.MobileSignal) }},
	},
	models.GroupInfrastructure: {
		{"road_length_km", "Road length (km)", true, func(p *models.YearlyProfile) float64 { return p.Infrastructure.RoadLengthKM }},
		{"open_defecation", "Households practising open defecation", false, func(p *models.YearlyProfile) float64 {
			return float64(p.Infrastructure.HouseholdsOpenDefecation)
		}},
		{"irrigation_ha", "Irrigation coverage (ha)", true, func(p *models.YearlyProfile) float64 { return p.Infrastructure.IrrigationCoverageHa }},
	},
	models.GroupFacilities: {
		{"facility_count", "Facilities present", true, func(p *models.YearlyProfile) float64 {
			count := 0
			for _, def := range facilityExtractors {
				if def.extract(&p.Facilities).Exists {
					count++
				}
			}
			return float64(count)
		}},
		{"average_condition", "Average facility condition", true, func(p *models.YearlyProfile) float64 {
			sum, n := 0, 0
			for _, def := range facilityExtractors {
				status := def.extract(&p.Facilities)
				if status.Exists && status.Condition >= 1 && status.Condition <= 5 {
					sum += status.Condition
					n++
				}
			}
			if n == 0 {
				return 0
			}
			return round1(float64(sum) / float64(n))
		}},
	},
	models.GroupLivelihood: {
		{"average_daily_income", "Average daily income", true, func(p *models.YearlyProfile) float64 { return p.Livelihood.AverageDailyIncome }},
		{"farmers", "Farmers", true, func(p *models.YearlyProfile) float64 { return float64(p.Livelihood.Farmers) }},
		{"farm_area_ha", "Farm area (ha)", true, func(p *models.YearlyProfile) float64 { return p.Livelihood.FarmAreaHa }},
	},
	models.GroupSafety: {
		{"crime_incidents", "Crime incidents", false, func(p *models.YearlyProfile) float64 { return float64(p.Safety.CrimeIncidents) }},
		{"disaster_trained_households", "Disaster-trained households", true, func(p *models.YearlyProfile) float64 {
			return float64(p.Safety.DisasterTrainedHH)
		}},
		{"hazard_exposure", "Hazard exposure count", false, func(p *models.YearlyProfile) float64 {
			count := 0
			if p.Safety.FloodProne {
				count++
			}
			if p.Safety.LandslideProne {
				count++
			}
			if p.Safety.EarthquakeDamage {
				count++
			}
			return float64(count)
		}},
	},
	models.GroupEducation: {
		{"school_age_children", "School-age children", true, func(p *models.YearlyProfile) float64 {
			return float64(p.Demographics.SchoolAgeChildren)
		}},
		{"out_of_school_youth", "Out-of-school youth", false, func(p *models.YearlyProfile) float64 {
			return float64(p.Demographics.OutOfSchoolYouth)
		}},
	},
	// customFields has no fixed numeric metrics; it is accepted on the wire
	// but contributes nothing to computed comparisons.
	models.GroupCustomFields: {},
}

type sitioReader interface {
	List(ctx context.Context, filter repository.SitioListFilter) ([]models.SitioRecord, error)
	GetByID(ctx context.Context, id int64) (*models.SitioRecord, error)
}

// ComparisonConfig caps comparison breadth.
type ComparisonConfig struct {
	MaxSitios int
	MaxYears  int
}

// ComparisonService answers temporal, spatial, and aggregate comparison
// queries over sitio profiles.
type ComparisonService struct {
	sitios sitioReader
	agg    *AggregationService
	cfg    ComparisonConfig
	logger *zap.Logger
}

// NewComparisonService constructs the service.
func NewComparisonService(sitios sitioReader, agg *AggregationService, cfg ComparisonConfig, logger *zap.Logger) *ComparisonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComparisonService{sitios: sitios, agg: agg, cfg: cfg, logger: logger}
}

// Compare dispatches on the request type.
func (s *ComparisonService) Compare(ctx context.Context, req models.ComparisonRequest) (interface{}, error) {
	switch req.Type {
	case models.ComparisonTemporal:
		return s.Temporal(ctx, req)
	case models.ComparisonSpatial:
		return s.Spatial(ctx, req)
	case models.ComparisonAggregate:
		return s.Aggregate(ctx, req)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown comparison type: %s", req.Type))
	}
}

// ShareToken renders the request in the compact shareable wire format.
func (s *ComparisonService) ShareToken(req models.ComparisonRequest) string {
	return dto.SerializeComparison(req)
}

// Temporal tracks one sitio's metrics across two or more years.
func (s *ComparisonService) Temporal(ctx context.Context, req models.ComparisonRequest) (*models.TemporalComparison, error) {
	if len(req.SitioIDs) != 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "temporal comparison requires exactly one sitio")
	}
	if len(req.Years) < 2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "temporal comparison requires at least two years")
	}
	if len(req.Years) > s.cfg.MaxYears {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("temporal comparison is limited to %d years", s.cfg.MaxYears))
	}
	metrics := s.selectMetrics(req.MetricGroups)
	if len(metrics) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no comparable metric groups selected")
	}

	sitio, err := s.loadSitio(ctx, req.SitioIDs[0])
	if err != nil {
		return nil, err
	}

	years := append([]string(nil), req.Years...)
	sort.Strings(years)

	result := &models.TemporalComparison{
		SitioID:   sitio.ID,
		SitioName: sitio.Name,
		Years:     years,
	}
	for _, def := range metrics {
		metric := models.TemporalMetric{
			Key:            def.key,
			Label:          def.label,
			HigherIsBetter: def.higherIsBetter,
		}
		for _, year := range years {
			value := 0.0
			if profile, ok := sitio.ProfileFor(year); ok {
				value = def.extract(&profile)
			}
			metric.Values = append(metric.Values, models.YearValue{Year: year, Value: value})
		}
		for i := 1; i < len(metric.Values); i++ {
			metric.Diffs = append(metric.Diffs, ComputeYoY(metric.Values[i-1].Value, metric.Values[i].Value, def.higherIsBetter))
		}
		if len(metric.Values) >= 2 {
			metric.OverallTrend = ComputeYoY(metric.Values[0].Value, metric.Values[len(metric.Values)-1].Value, def.higherIsBetter)
		}
		result.Metrics = append(result.Metrics, metric)
	}
	return result, nil
}

// Spatial ranks two or more sitios against each other within one year.
func (s *ComparisonService) Spatial(ctx context.Context, req models.ComparisonRequest) (*models.SpatialComparison, error) {
	if len(req.SitioIDs) < 2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "spatial comparison requires at least two sitios")
	}
	if len(req.SitioIDs) > s.cfg.MaxSitios {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("spatial comparison is limited to %d sitios", s.cfg.MaxSitios))
	}
	metrics := s.selectMetrics(req.MetricGroups)
	if len(metrics) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no comparable metric groups selected")
	}
	if len(req.Years) != 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "spatial comparison requires exactly one year")
	}
	year := req.Years[0]

	sitios := make([]*models.SitioRecord, 0, len(req.SitioIDs))
	for _, id := range req.SitioIDs {
		sitio, err := s.loadSitio(ctx, id)
		if err != nil {
			return nil, err
		}
		sitios = append(sitios, sitio)
	}

	result := &models.SpatialComparison{Year: year, Sitios: req.SitioIDs}
	for _, def := range metrics {
		metric := models.SpatialMetric{
			Key:            def.key,
			Label:          def.label,
			HigherIsBetter: def.higherIsBetter,
		}
		sum := 0.0
		for _, sitio := range sitios {
			value := 0.0
			if profile, ok := sitio.ProfileFor(year); ok {
				value = def.extract(&profile)
			}
			metric.Values = append(metric.Values, models.RankedValue{
				SitioID:   sitio.ID,
				SitioName: sitio.Name,
				Value:     value,
			})
			sum += value
		}
		rankValues(metric.Values, def.higherIsBetter)
		metric.Min = metric.Values[0].Value
		metric.Max = metric.Values[0].Value
		for _, value := range metric.Values {
			if value.Value < metric.Min {
				metric.Min = value.Value
			}
			if value.Value > metric.Max {
				metric.Max = value.Value
			}
		}
		metric.Average = round1(sum / float64(len(metric.Values)))
		result.Metrics = append(result.Metrics, metric)
	}
	return result, nil
}

// Aggregate compares whole municipalities or barangays in one year.
func (s *ComparisonService) Aggregate(ctx context.Context, req models.ComparisonRequest) (*models.AggregateComparison, error) {
	if req.AggregateLevel != models.LevelMunicipality && req.AggregateLevel != models.LevelBarangay {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported aggregation level: %s", req.AggregateLevel))
	}
	if len(req.AggregateEntities) < 2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "aggregate comparison requires at least two entities")
	}
	if len(req.AggregateEntities) > s.cfg.MaxSitios {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("aggregate comparison is limited to %d entities", s.cfg.MaxSitios))
	}
	if len(req.Years) != 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "aggregate comparison requires exactly one year")
	}
	year := req.Years[0]

	result := &models.AggregateComparison{Year: year, Level: req.AggregateLevel}
	for _, entity := range req.AggregateEntities {
		filter := repository.SitioListFilter{}
		if req.AggregateLevel == models.LevelMunicipality {
			filter.Municipality = entity
		} else {
			filter.Barangay = entity
			filter.Municipality = req.MunicipalityFilter
		}
		sitios, err := s.sitios.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sitios for aggregate comparison")
		}
		overview := s.agg.Fold(sitios, year)
		result.Entities = append(result.Entities, models.EntityAggregation{
			Name:       entity,
			SitioCount: len(sitios),
			Overview:   *overview,
		})
	}
	return result, nil
}

func (s *ComparisonService) selectMetrics(groups []models.MetricGroup) []metricDef {
	var metrics []metricDef
	seen := map[string]bool{}
	for _, group := range groups {
		for _, def := range metricCatalog[group] {
			if !seen[def.key] {
				seen[def.key] = true
				metrics = append(metrics, def)
			}
		}
	}
	return metrics
}

func (s *ComparisonService) loadSitio(ctx context.Context, id int64) (*models.SitioRecord, error) {
	sitio, err := s.sitios.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("sitio %d not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sitio")
	}
	return sitio, nil
}

// rankValues assigns 1-based ranks in place; ties share the earlier rank's
// position by stable ordering on sitio id.
func rankValues(values []models.RankedValue, higherIsBetter bool) {
	ordered := make([]*models.RankedValue, len(values))
	for i := range values {
		ordered[i] = &values[i]
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Value != ordered[j].Value {
			if higherIsBetter {
				return ordered[i].Value > ordered[j].Value
			}
			return ordered[i].Value < ordered[j].Value
		}
		return ordered[i].SitioID < ordered[j].SitioID
	})
	for rank, value := range ordered {
		value.Rank = rank + 1
	}
}
