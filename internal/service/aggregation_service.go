package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sitiograph/sitio-profile-api/internal/models"
	"github.com/sitiograph/sitio-profile-api/internal/repository"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
)

// Percentage is the divide-by-zero-safe share of part in whole, rounded to
// one decimal. A zero whole yields 0, never NaN.
func Percentage(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return round1(part / whole * 100)
}

// ComputeYoY derives the year-over-year change from prev to curr. Both zero
// means no signal (nil); a zero prev with a nonzero curr is reported as a
// flat 100 percent movement.
func ComputeYoY(prev, curr float64, higherIsBetter bool) *models.YoYChange {
	if prev == 0 && curr == 0 {
		return nil
	}
	var percent float64
	switch {
	case prev == 0:
		percent = 100
	default:
		percent = round1((curr - prev) / prev * 100)
	}
	improvement := false
	if curr != prev {
		improvement = (curr > prev) == higherIsBetter
	}
	return &models.YoYChange{Percent: percent, IsImprovement: improvement}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

type sitioLister interface {
	List(ctx context.Context, filter repository.SitioListFilter) ([]models.SitioRecord, error)
}

type analyticsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AggregationConfig tunes the fold behaviour.
type AggregationConfig struct {
	Enabled          bool
	CacheTTL         time.Duration
	PovertyThreshold float64
}

// AggregationService folds sitio yearly profiles into multi-dimensional
// summaries for dashboards and comparisons.
type AggregationService struct {
	sitios  sitioLister
	cache   analyticsCache
	metrics *MetricsService
	cfg     AggregationConfig
	logger  *zap.Logger
}

// NewAggregationService constructs the service. cache and metrics may be nil.
func NewAggregationService(sitios sitioLister, cache analyticsCache, metrics *MetricsService, cfg AggregationConfig, logger *zap.Logger) *AggregationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregationService{sitios: sitios, cache: cache, metrics: metrics, cfg: cfg, logger: logger}
}

func (s *AggregationService) listSitios(ctx context.Context, filter repository.SitioListFilter, label string) ([]models.SitioRecord, error) {
	start := time.Now()
	sitios, err := s.sitios.List(ctx, filter)
	s.metrics.ObserveDBQuery(label, time.Since(start))
	return sitios, err
}

// Overview folds every metric group for the sitios matching the filter.
// Results are cached per filter and year.
func (s *AggregationService) Overview(ctx context.Context, filter repository.SitioListFilter, year string) (*models.AggregationOverview, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "aggregation is disabled")
	}
	key := fmt.Sprintf("agg:overview:%s:%s:%s:%s", filter.Municipality, filter.Barangay, filter.Search, year)
	if s.cache != nil {
		var cached models.AggregationOverview
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	sitios, err := s.listSitios(ctx, filter, "aggregation_overview")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sitios for aggregation")
	}
	overview := s.Fold(sitios, year)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, overview, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache aggregation overview", zap.Error(err))
		}
	}
	return overview, nil
}

// Fold computes the full overview over an in-memory sitio set.
func (s *AggregationService) Fold(sitios []models.SitioRecord, year string) *models.AggregationOverview {
	profiles := resolveProfiles(sitios, year)
	return &models.AggregationOverview{
		Year:           year,
		Demographics:   foldDemographics(profiles),
		Utilities:      foldUtilities(profiles),
		Facilities:     foldFacilities(profiles),
		Infrastructure: foldInfrastructure(profiles),
		Livelihood:     s.foldLivelihood(profiles),
		Safety:         foldSafety(profiles),
		Priorities:     foldPriorities(profiles),
	}
}

// GeoRollups groups headline figures by municipality or barangay.
func (s *AggregationService) GeoRollups(ctx context.Context, level models.AggregationLevel, year string) ([]models.GeoRollup, error) {
	if level != models.LevelMunicipality && level != models.LevelBarangay {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported aggregation level: %s", level))
	}
	sitios, err := s.listSitios(ctx, repository.SitioListFilter{}, "aggregation_rollup")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sitios for rollup")
	}

	groups := make(map[string]*models.GeoRollup)
	for i := range sitios {
		sitio := &sitios[i]
		name := sitio.Municipality
		if level == models.LevelBarangay {
			name = sitio.Barangay
		}
		rollup, ok := groups[name]
		if !ok {
			rollup = &models.GeoRollup{Name: name}
			groups[name] = rollup
		}
		rollup.SitioCount++
		if sitio.GIDA {
			rollup.GIDACount++
		}
		if profile, ok := sitio.ProfileFor(year); ok {
			rollup.Population += profile.Demographics.Population
			rollup.Households += profile.Demographics.Households
		}
	}

	result := make([]models.GeoRollup, 0, len(groups))
	for _, rollup := range groups {
		result = append(result, *rollup)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Bounds frames the coordinates of the given sitios for map views.
func (s *AggregationService) Bounds(sitios []models.SitioRecord) models.BoundingBox {
	box := models.BoundingBox{}
	for i := range sitios {
		sitio := &sitios[i]
		if sitio.Latitude == nil || sitio.Longitude == nil {
			continue
		}
		lat, lng := *sitio.Latitude, *sitio.Longitude
		if !box.Found {
			box = models.BoundingBox{MinLat: lat, MaxLat: lat, MinLng: lng, MaxLng: lng, Found: true}
			continue
		}
		box.MinLat = math.Min(box.MinLat, lat)
		box.MaxLat = math.Max(box.MaxLat, lat)
		box.MinLng = math.Min(box.MinLng, lng)
		box.MaxLng = math.Max(box.MaxLng, lng)
	}
	return box
}

// InvalidateAnalytics drops every cached aggregation and comparison payload.
// Called after an approved change mutates the underlying records.
func (s *AggregationService) InvalidateAnalytics(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	for _, pattern := range []string{"agg:*", "cmp:*"} {
		if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
			return err
		}
	}
	return nil
}

// resolveProfiles picks the snapshot for the requested year per sitio,
// falling back to each sitio's latest year when year is empty. Sitios with
// no usable snapshot are excluded.
func resolveProfiles(sitios []models.SitioRecord, year string) []models.YearlyProfile {
	profiles := make([]models.YearlyProfile, 0, len(sitios))
	for i := range sitios {
		if profile, ok := sitios[i].ProfileFor(year); ok {
			profiles = append(profiles, profile)
		}
	}
	return profiles
}

func foldDemographics(profiles []models.YearlyProfile) models.DemographicsAggregation {
	agg := models.DemographicsAggregation{SitioCount: len(profiles)}
	for i := range profiles {
		d := &profiles[i].Demographics
		agg.Population += d.Population
		agg.Households += d.Households
		agg.Male += d.Male
		agg.Female += d.Female
		agg.RegisteredVoters += d.RegisteredVoters
		agg.LaborForce += d.LaborForce
		agg.Employed += d.Employed
		agg.Unemployed += d.Unemployed
		agg.SeniorCitizens += d.SeniorCitizens
		agg.SchoolAgeChildren += d.SchoolAgeChildren
		agg.OutOfSchoolYouth += d.OutOfSchoolYouth
		agg.PersonsWithDisability += d.PersonsWithDisability
	}
	if agg.Households > 0 {
		agg.AverageHouseholdSize = round1(float64(agg.Population) / float64(agg.Households))
	}
	agg.UnemploymentRate = Percentage(float64(agg.Unemployed), float64(agg.LaborForce))
	agg.VoterShare = Percentage(float64(agg.RegisteredVoters), float64(agg.Population))

	agg.AgeGroups = models.AgeGroupEstimate{
		Children:   agg.SchoolAgeChildren,
		WorkingAge: agg.LaborForce,
		Seniors:    agg.SeniorCitizens,
	}
	unclassified := agg.Population - agg.AgeGroups.Children - agg.AgeGroups.WorkingAge - agg.AgeGroups.Seniors
	if unclassified > 0 {
		agg.AgeGroups.Unclassified = unclassified
	}
	return agg
}

var signalTierNames = map[models.MobileSignalTier]string{
	models.SignalNone:   "none",
	models.SignalWeak:   "weak",
	models.SignalMedium: "medium",
	models.SignalStrong: "strong",
}

func foldUtilities(profiles []models.YearlyProfile) models.UtilitiesAggregation {
	agg := models.UtilitiesAggregation{
		SitioCount:          len(profiles),
		MobileSignalBuckets: map[string]int{"none": 0, "weak": 0, "medium": 0, "strong": 0},
	}
	for i := range profiles {
		u := &profiles[i].Utilities
		agg.Households += profiles[i].Demographics.Households
		agg.HouseholdsWithElectricity += u.HouseholdsWithElectricity
		agg.HouseholdsWithWater += u.HouseholdsWithWater
		agg.HouseholdsWithInternet += u.HouseholdsWithInternet
		agg.HouseholdsWithToilet += u.HouseholdsWithToilet
		if name, ok := signalTierNames[u.MobileSignal]; ok {
			agg.MobileSignalBuckets[name]++
		}
	}
	households := float64(agg.Households)
	agg.ElectricityRate = Percentage(float64(agg.HouseholdsWithElectricity), households)
	agg.WaterRate = Percentage(float64(agg.HouseholdsWithWater), households)
	agg.InternetRate = Percentage(float64(agg.HouseholdsWithInternet), households)
	agg.SanitationRate = Percentage(float64(agg.HouseholdsWithToilet), households)
	return agg
}

var facilityExtractors = []struct {
	name    string
	extract func(*models.Facilities) models.FacilityStatus
}{
	{"school", func(f *models.Facilities) models.FacilityStatus { return f.School }},
	{"day_care", func(f *models.Facilities) models.FacilityStatus { return f.DayCare }},
	{"health_station", func(f *models.Facilities) models.FacilityStatus { return f.HealthStation }},
	{"chapel", func(f *models.Facilities) models.FacilityStatus { return f.Chapel }},
	{"community_hall", func(f *models.Facilities) models.FacilityStatus { return f.CommunityHall }},
	{"water_system", func(f *models.Facilities) models.FacilityStatus { return f.WaterSystem }},
	{"court", func(f *models.Facilities) models.FacilityStatus { return f.Court }},
}

func foldFacilities(profiles []models.YearlyProfile) models.FacilitiesAggregation {
	agg := models.FacilitiesAggregation{
		SitioCount: len(profiles),
		Facilities: make(map[string]models.FacilityAggregation, len(facilityExtractors)),
	}
	for _, def := range facilityExtractors {
		fold := models.FacilityAggregation{ConditionBuckets: map[string]int{}}
		conditionSum, conditionCount := 0, 0
		for i := range profiles {
			status := def.extract(&profiles[i].Facilities)
			if !status.Exists {
				continue
			}
			fold.ExistsCount++
			if status.Condition >= 1 && status.Condition <= 5 {
				fold.ConditionBuckets[strconv.Itoa(status.Condition)]++
				conditionSum += status.Condition
				conditionCount++
			}
		}
		fold.CoverageRate = Percentage(float64(fold.ExistsCount), float64(len(profiles)))
		if conditionCount > 0 {
			fold.AverageCondition = round1(float64(conditionSum) / float64(conditionCount))
		}
		agg.Facilities[def.name] = fold
	}
	return agg
}

func foldInfrastructure(profiles []models.YearlyProfile) models.InfrastructureAggregation {
	agg := models.InfrastructureAggregation{
		SitioCount:         len(profiles),
		RoadTypeBuckets:    map[string]int{},
		WaterSourceBuckets: map[string]int{},
	}
	households := 0
	for i := range profiles {
		infra := &profiles[i].Infrastructure
		households += profiles[i].Demographics.Households
		road := string(infra.RoadType)
		if road == "" {
			road = string(models.RoadNone)
		}
		agg.RoadTypeBuckets[road]++
		agg.TotalRoadKM += infra.RoadLengthKM
		if infra.HasStreetLights {
			agg.SitiosWithStreetLights++
		}
		agg.HouseholdsOpenDefecation += infra.HouseholdsOpenDefecation
		agg.IrrigationCoverageHa += infra.IrrigationCoverageHa
		for _, source := range infra.WaterSources {
			agg.WaterSourceBuckets[source]++
		}
	}
	agg.TotalRoadKM = round1(agg.TotalRoadKM)
	agg.IrrigationCoverageHa = round1(agg.IrrigationCoverageHa)
	agg.OpenDefecationRate = Percentage(float64(agg.HouseholdsOpenDefecation), float64(households))
	return agg
}

func (s *AggregationService) foldLivelihood(profiles []models.YearlyProfile) models.LivelihoodAggregation {
	agg := models.LivelihoodAggregation{SitioCount: len(profiles)}
	incomeSum, incomeCount := 0.0, 0
	for i := range profiles {
		l := &profiles[i].Livelihood
		agg.Farmers += l.Farmers
		agg.Fisherfolk += l.Fisherfolk
		agg.LivestockRaisers += l.LivestockRaisers
		agg.LivestockHeads += l.LivestockHeads
		agg.BackyardGardens += l.BackyardGardens
		agg.HouseholdsWithPets += l.HouseholdsWithPets
		agg.FarmAreaHa += l.FarmAreaHa
		if l.AverageDailyIncome > 0 {
			incomeSum += l.AverageDailyIncome
			incomeCount++
			if l.AverageDailyIncome < s.cfg.PovertyThreshold {
				agg.SitiosBelowPovertyThreshold++
			}
		}
	}
	agg.FarmAreaHa = round1(agg.FarmAreaHa)
	if incomeCount > 0 {
		agg.AverageDailyIncome = round1(incomeSum / float64(incomeCount))
	}
	agg.PovertyIncidence = Percentage(float64(agg.SitiosBelowPovertyThreshold), float64(incomeCount))
	return agg
}

func foldSafety(profiles []models.YearlyProfile) models.SafetyAggregation {
	agg := models.SafetyAggregation{
		SitioCount:          len(profiles),
		FoodSecurityBuckets: map[string]int{},
	}
	for i := range profiles {
		safety := &profiles[i].Safety
		if safety.FloodProne {
			agg.FloodProne++
		}
		if safety.LandslideProne {
			agg.LandslideProne++
		}
		if safety.EarthquakeDamage {
			agg.EarthquakeDamage++
		}
		agg.CrimeIncidents += safety.CrimeIncidents
		if safety.EvacuationCenter {
			agg.SitiosWithEvacuationCenter++
		}
		agg.DisasterTrainedHouseholds += safety.DisasterTrainedHH
		if safety.FoodSecurity != "" {
			agg.FoodSecurityBuckets[string(safety.FoodSecurity)]++
		}
	}
	return agg
}

// foldPriorities ranks needs across sitios with reciprocal-rank weighting:
// a need listed first scores 1.0, second 0.5, third 0.33 and so on.
func foldPriorities(profiles []models.YearlyProfile) models.PrioritiesAggregation {
	agg := models.PrioritiesAggregation{SitioCount: len(profiles)}
	counts := map[string]int{}
	scores := map[string]float64{}
	for i := range profiles {
		for rank, need := range profiles[i].Priorities.Needs {
			counts[need]++
			scores[need] += 1.0 / float64(rank+1)
		}
	}
	for need, count := range counts {
		agg.Ranked = append(agg.Ranked, models.PriorityScore{
			Need:  need,
			Count: count,
			Score: math.Round(scores[need]*100) / 100,
		})
	}
	sort.Slice(agg.Ranked, func(i, j int) bool {
		a, b := agg.Ranked[i], agg.Ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Need < b.Need
	})
	return agg
}
