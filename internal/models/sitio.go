package models

import (
	"database/sql/driver"
	"encoding/json"
	"sort"
	"time"

	"github.com/lib/pq"
)

// MobileSignalTier grades connectivity from none (0) to strong 4G/5G (3).
type MobileSignalTier int

const (
	SignalNone   MobileSignalTier = 0
	SignalWeak   MobileSignalTier = 1
	SignalMedium MobileSignalTier = 2
	SignalStrong MobileSignalTier = 3
)

// FoodSecurityStatus classifies household food supply for the year.
type FoodSecurityStatus string

const (
	FoodSecure             FoodSecurityStatus = "secure"
	FoodModeratelyInsecure FoodSecurityStatus = "moderately_insecure"
	FoodSeverelyInsecure   FoodSecurityStatus = "severely_insecure"
)

// RoadType is the dominant access-road surface of the sitio.
type RoadType string

const (
	RoadConcrete RoadType = "concrete"
	RoadGravel   RoadType = "gravel"
	RoadDirt     RoadType = "dirt"
	RoadNone     RoadType = "none"
)

// FacilityStatus records whether a community facility exists and, when it
// does, its physical condition from 1 (dilapidated) to 5 (excellent).
type FacilityStatus struct {
	Exists    bool `json:"exists"`
	Condition int  `json:"condition,omitempty"`
}

// Demographics holds population structure figures for one year.
type Demographics struct {
	Population            int `json:"population"`
	Households            int `json:"households"`
	Male                  int `json:"male"`
	Female                int `json:"female"`
	RegisteredVoters      int `json:"registered_voters"`
	LaborForce            int `json:"labor_force"`
	Employed              int `json:"employed"`
	Unemployed            int `json:"unemployed"`
	SeniorCitizens        int `json:"senior_citizens"`
	SchoolAgeChildren     int `json:"school_age_children"`
	OutOfSchoolYouth      int `json:"out_of_school_youth"`
	PersonsWithDisability int `json:"persons_with_disability"`
}

// Utilities covers household-level service coverage.
type Utilities struct {
	HouseholdsWithElectricity int              `json:"households_with_electricity"`
	HouseholdsWithWater       int              `json:"households_with_water"`
	HouseholdsWithInternet    int              `json:"households_with_internet"`
	HouseholdsWithToilet      int              `json:"households_with_toilet"`
	MobileSignal              MobileSignalTier `json:"mobile_signal"`
}

// Facilities inventories community infrastructure with conditions.
type Facilities struct {
	School        FacilityStatus `json:"school"`
	DayCare       FacilityStatus `json:"day_care"`
	HealthStation FacilityStatus `json:"health_station"`
	Chapel        FacilityStatus `json:"chapel"`
	CommunityHall FacilityStatus `json:"community_hall"`
	WaterSystem   FacilityStatus `json:"water_system"`
	Court         FacilityStatus `json:"court"`
}

// Infrastructure describes access and sanitation conditions.
type Infrastructure struct {
	RoadType                 RoadType `json:"road_type"`
	RoadLengthKM             float64  `json:"road_length_km"`
	HasStreetLights          bool     `json:"has_street_lights"`
	WaterSources             []string `json:"water_sources,omitempty"`
	HouseholdsOpenDefecation int      `json:"households_open_defecation"`
	IrrigationCoverageHa     float64  `json:"irrigation_coverage_ha"`
}

// Livelihood tallies primary income activities.
type Livelihood struct {
	Farmers            int     `json:"farmers"`
	Fisherfolk         int     `json:"fisherfolk"`
	LivestockRaisers   int     `json:"livestock_raisers"`
	LivestockHeads     int     `json:"livestock_heads"`
	BackyardGardens    int     `json:"backyard_gardens"`
	HouseholdsWithPets int     `json:"households_with_pets"`
	FarmAreaHa         float64 `json:"farm_area_ha"`
	AverageDailyIncome float64 `json:"average_daily_income"`
}

// Safety captures hazard exposure and peace-and-order figures.
type Safety struct {
	FloodProne        bool               `json:"flood_prone"`
	LandslideProne    bool               `json:"landslide_prone"`
	EarthquakeDamage  bool               `json:"earthquake_damage"`
	CrimeIncidents    int                `json:"crime_incidents"`
	FoodSecurity      FoodSecurityStatus `json:"food_security"`
	EvacuationCenter  bool               `json:"evacuation_center"`
	DisasterTrainedHH int                `json:"disaster_trained_households"`
}

// Priorities ranks requested interventions, most urgent first.
type Priorities struct {
	Needs []string `json:"needs,omitempty"`
}

// YearlyProfile is a sitio's full attribute set for exactly one calendar
// year. Snapshots are replaced whole, never partially mutated.
type YearlyProfile struct {
	Year           string         `json:"year"`
	Demographics   Demographics   `json:"demographics"`
	Utilities      Utilities      `json:"utilities"`
	Facilities     Facilities     `json:"facilities"`
	Infrastructure Infrastructure `json:"infrastructure"`
	Livelihood     Livelihood     `json:"livelihood"`
	Safety         Safety         `json:"safety"`
	Priorities     Priorities     `json:"priorities"`
}

// ProfileMap stores yearly snapshots keyed by year string, persisted as a
// JSONB column.
type ProfileMap map[string]YearlyProfile

// Value implements driver.Valuer.
func (m ProfileMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *ProfileMap) Scan(src interface{}) error {
	return scanJSON(src, m, "profile map")
}

// SitioRecord is one sub-village with its classification flags and all
// yearly profile snapshots.
type SitioRecord struct {
	ID           int64    `db:"id" json:"id"`
	Name         string   `db:"name" json:"name"`
	Barangay     string   `db:"barangay" json:"barangay"`
	Municipality string   `db:"municipality" json:"municipality"`
	Province     string   `db:"province" json:"province"`
	Latitude     *float64 `db:"latitude" json:"latitude,omitempty"`
	Longitude    *float64 `db:"longitude" json:"longitude,omitempty"`

	GIDA             bool `db:"gida" json:"gida"`
	Indigenous       bool `db:"indigenous" json:"indigenous"`
	ConflictAffected bool `db:"conflict_affected" json:"conflict_affected"`

	AvailableYears pq.StringArray `db:"available_years" json:"available_years"`
	Profiles       ProfileMap     `db:"profiles" json:"profiles"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProfileFor resolves the snapshot for the requested year, or the latest
// available year when year is empty. The boolean is false when no usable
// snapshot exists.
func (s *SitioRecord) ProfileFor(year string) (YearlyProfile, bool) {
	if len(s.Profiles) == 0 {
		return YearlyProfile{}, false
	}
	if year != "" {
		profile, ok := s.Profiles[year]
		return profile, ok
	}
	latest := s.LatestYear()
	if latest == "" {
		return YearlyProfile{}, false
	}
	profile, ok := s.Profiles[latest]
	return profile, ok
}

// LatestYear returns the newest year with a stored snapshot.
func (s *SitioRecord) LatestYear() string {
	years := make([]string, 0, len(s.AvailableYears))
	for _, year := range s.AvailableYears {
		if _, ok := s.Profiles[year]; ok {
			years = append(years, year)
		}
	}
	if len(years) == 0 {
		for year := range s.Profiles {
			years = append(years, year)
		}
	}
	if len(years) == 0 {
		return ""
	}
	sort.Strings(years)
	return years[len(years)-1]
}

// SitioPatch is an explicit partial update; nil fields are left unchanged.
type SitioPatch struct {
	Name             *string  `json:"name,omitempty"`
	Barangay         *string  `json:"barangay,omitempty"`
	Municipality     *string  `json:"municipality,omitempty"`
	Province         *string  `json:"province,omitempty"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	GIDA             *bool    `json:"gida,omitempty"`
	Indigenous       *bool    `json:"indigenous,omitempty"`
	ConflictAffected *bool    `json:"conflict_affected,omitempty"`
	// Profiles entries replace the whole year snapshot they are keyed by.
	Profiles map[string]YearlyProfile `json:"profiles,omitempty"`
}

// Apply merges the patch into the record field by field. New profile years
// are appended to AvailableYears in sorted order.
func (p SitioPatch) Apply(record *SitioRecord) {
	if p.Name != nil {
		record.Name = *p.Name
	}
	if p.Barangay != nil {
		record.Barangay = *p.Barangay
	}
	if p.Municipality != nil {
		record.Municipality = *p.Municipality
	}
	if p.Province != nil {
		record.Province = *p.Province
	}
	if p.Latitude != nil {
		record.Latitude = p.Latitude
	}
	if p.Longitude != nil {
		record.Longitude = p.Longitude
	}
	if p.GIDA != nil {
		record.GIDA = *p.GIDA
	}
	if p.Indigenous != nil {
		record.Indigenous = *p.Indigenous
	}
	if p.ConflictAffected != nil {
		record.ConflictAffected = *p.ConflictAffected
	}
	if len(p.Profiles) > 0 {
		if record.Profiles == nil {
			record.Profiles = make(ProfileMap, len(p.Profiles))
		}
		for year, profile := range p.Profiles {
			profile.Year = year
			record.Profiles[year] = profile
			if !containsYear(record.AvailableYears, year) {
				record.AvailableYears = append(record.AvailableYears, year)
			}
		}
		sort.Strings(record.AvailableYears)
	}
}

func containsYear(years pq.StringArray, year string) bool {
	for _, y := range years {
		if y == year {
			return true
		}
	}
	return false
}
