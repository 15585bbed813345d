package models

// YoYChange describes a year-over-year movement for one metric. Percent is
// rounded to one decimal; IsImprovement is polarity-aware (supplied by the
// caller as higher-is-better or lower-is-better).
type YoYChange struct {
	Percent       float64 `json:"percent"`
	IsImprovement bool    `json:"is_improvement"`
}

// AgeGroupEstimate approximates population age bands from proxy fields
// (school-age children, labor force, seniors). It is an estimation, not
// census math: the remainder bucket absorbs everyone not covered by a proxy.
type AgeGroupEstimate struct {
	Children     int `json:"children"`
	WorkingAge   int `json:"working_age"`
	Seniors      int `json:"seniors"`
	Unclassified int `json:"unclassified"`
}

// DemographicsAggregation summarises population structure.
type DemographicsAggregation struct {
	SitioCount            int              `json:"sitio_count"`
	Population            int              `json:"population"`
	Households            int              `json:"households"`
	Male                  int              `json:"male"`
	Female                int              `json:"female"`
	RegisteredVoters      int              `json:"registered_voters"`
	LaborForce            int              `json:"labor_force"`
	Employed              int              `json:"employed"`
	Unemployed            int              `json:"unemployed"`
	SeniorCitizens        int              `json:"senior_citizens"`
	SchoolAgeChildren     int              `json:"school_age_children"`
	OutOfSchoolYouth      int              `json:"out_of_school_youth"`
	PersonsWithDisability int              `json:"persons_with_disability"`
	AverageHouseholdSize  float64          `json:"average_household_size"`
	UnemploymentRate      float64          `json:"unemployment_rate"`
	VoterShare            float64          `json:"voter_share"`
	AgeGroups             AgeGroupEstimate `json:"age_groups"`
}

// UtilitiesAggregation summarises service coverage across households.
type UtilitiesAggregation struct {
	SitioCount                int            `json:"sitio_count"`
	Households                int            `json:"households"`
	HouseholdsWithElectricity int            `json:"households_with_electricity"`
	HouseholdsWithWater       int            `json:"households_with_water"`
	HouseholdsWithInternet    int            `json:"households_with_internet"`
	HouseholdsWithToilet      int            `json:"households_with_toilet"`
	ElectricityRate           float64        `json:"electricity_rate"`
	WaterRate                 float64        `json:"water_rate"`
	InternetRate              float64        `json:"internet_rate"`
	SanitationRate            float64        `json:"sanitation_rate"`
	MobileSignalBuckets       map[string]int `json:"mobile_signal_buckets"`
}

// FacilityAggregation folds one facility type across sitios.
type FacilityAggregation struct {
	ExistsCount      int            `json:"exists_count"`
	CoverageRate     float64        `json:"coverage_rate"`
	ConditionBuckets map[string]int `json:"condition_buckets"`
	AverageCondition float64        `json:"average_condition"`
}

// FacilitiesAggregation summarises community infrastructure presence.
type FacilitiesAggregation struct {
	SitioCount int                            `json:"sitio_count"`
	Facilities map[string]FacilityAggregation `json:"facilities"`
}

// InfrastructureAggregation summarises access and sanitation.
type InfrastructureAggregation struct {
	SitioCount               int            `json:"sitio_count"`
	RoadTypeBuckets          map[string]int `json:"road_type_buckets"`
	TotalRoadKM              float64        `json:"total_road_km"`
	SitiosWithStreetLights   int            `json:"sitios_with_street_lights"`
	HouseholdsOpenDefecation int            `json:"households_open_defecation"`
	OpenDefecationRate       float64        `json:"open_defecation_rate"`
	IrrigationCoverageHa     float64        `json:"irrigation_coverage_ha"`
	WaterSourceBuckets       map[string]int `json:"water_source_buckets"`
}

// LivelihoodAggregation summarises income activities and poverty incidence.
type LivelihoodAggregation struct {
	SitioCount         int     `json:"sitio_count"`
	Farmers            int     `json:"farmers"`
	Fisherfolk         int     `json:"fisherfolk"`
	LivestockRaisers   int     `json:"livestock_raisers"`
	LivestockHeads     int     `json:"livestock_heads"`
	BackyardGardens    int     `json:"backyard_gardens"`
	HouseholdsWithPets int     `json:"households_with_pets"`
	FarmAreaHa         float64 `json:"farm_area_ha"`
	AverageDailyIncome float64 `json:"average_daily_income"`
	// SitiosBelowPovertyThreshold counts sitios whose average daily income
	// falls under the configured poverty line.
	SitiosBelowPovertyThreshold int     `json:"sitios_below_poverty_threshold"`
	PovertyIncidence            float64 `json:"poverty_incidence"`
}

// SafetyAggregation summarises hazard exposure and food security.
type SafetyAggregation struct {
	SitioCount                 int            `json:"sitio_count"`
	FloodProne                 int            `json:"flood_prone"`
	LandslideProne             int            `json:"landslide_prone"`
	EarthquakeDamage           int            `json:"earthquake_damage"`
	CrimeIncidents             int            `json:"crime_incidents"`
	SitiosWithEvacuationCenter int            `json:"sitios_with_evacuation_center"`
	DisasterTrainedHouseholds  int            `json:"disaster_trained_households"`
	FoodSecurityBuckets        map[string]int `json:"food_security_buckets"`
}

// PriorityScore ranks one requested intervention across sitios. Score
// weights earlier ranks heavier, so frequent high-priority needs float up.
type PriorityScore struct {
	Need  string  `json:"need"`
	Count int     `json:"count"`
	Score float64 `json:"score"`
}

// PrioritiesAggregation ranks intervention needs across sitios.
type PrioritiesAggregation struct {
	SitioCount int             `json:"sitio_count"`
	Ranked     []PriorityScore `json:"ranked"`
}

// GeoRollup aggregates headline figures for one geographic grouping.
type GeoRollup struct {
	Name       string `json:"name"`
	SitioCount int    `json:"sitio_count"`
	Population int    `json:"population"`
	Households int    `json:"households"`
	GIDACount  int    `json:"gida_count"`
}

// BoundingBox frames sitio coordinates for map views.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
	// Found is false when no sitio in the set carries coordinates.
	Found bool `json:"found"`
}

// AggregationOverview bundles every metric group for a dashboard read.
type AggregationOverview struct {
	Year           string                    `json:"year,omitempty"`
	Demographics   DemographicsAggregation   `json:"demographics"`
	Utilities      UtilitiesAggregation      `json:"utilities"`
	Facilities     FacilitiesAggregation     `json:"facilities"`
	Infrastructure InfrastructureAggregation `json:"infrastructure"`
	Livelihood     LivelihoodAggregation     `json:"livelihood"`
	Safety         SafetyAggregation         `json:"safety"`
	Priorities     PrioritiesAggregation     `json:"priorities"`
}
