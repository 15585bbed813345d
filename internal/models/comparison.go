package models

// ComparisonType selects the comparison mode.
type ComparisonType string

const (
	ComparisonTemporal  ComparisonType = "temporal"
	ComparisonSpatial   ComparisonType = "spatial"
	ComparisonAggregate ComparisonType = "aggregate"
)

// MetricGroup names a family of comparable metrics.
type MetricGroup string

const (
	GroupDemographics   MetricGroup = "demographics"
	GroupUtilities      MetricGroup = "utilities"
	GroupInfrastructure MetricGroup = "infrastructure"
	GroupFacilities     MetricGroup = "facilities"
	GroupLivelihood     MetricGroup = "livelihood"
	GroupSafety         MetricGroup = "safety"
	GroupEducation      MetricGroup = "education"
	GroupCustomFields   MetricGroup = "customFields"
)

// AggregationLevel selects the geographic grain for aggregate comparisons.
type AggregationLevel string

const (
	LevelMunicipality AggregationLevel = "municipality"
	LevelBarangay     AggregationLevel = "barangay"
)

// ComparisonRequest is a validated comparison query. It round-trips through
// the compact URL wire format for shareable links.
type ComparisonRequest struct {
	Type               ComparisonType   `json:"type"`
	SitioIDs           []int64          `json:"sitio_ids,omitempty"`
	Years              []string         `json:"years,omitempty"`
	MetricGroups       []MetricGroup    `json:"metric_groups"`
	AggregateLevel     AggregationLevel `json:"aggregate_level,omitempty"`
	AggregateEntities  []string         `json:"aggregate_entities,omitempty"`
	MunicipalityFilter string           `json:"municipality_filter,omitempty"`
}

// MetricPoint is one named metric value with its polarity.
type MetricPoint struct {
	Key            string  `json:"key"`
	Label          string  `json:"label"`
	Value          float64 `json:"value"`
	HigherIsBetter bool    `json:"higher_is_better"`
}

// YearValue pairs a metric value with its year.
type YearValue struct {
	Year  string  `json:"year"`
	Value float64 `json:"value"`
}

// TemporalMetric is one metric's value series across years.
type TemporalMetric struct {
	Key            string      `json:"key"`
	Label          string      `json:"label"`
	HigherIsBetter bool        `json:"higher_is_better"`
	Values         []YearValue `json:"values"`
	// Diffs holds year-to-year changes; entry i compares Values[i+1] to
	// Values[i]. Nil entries mean no signal (both years zero).
	Diffs []*YoYChange `json:"diffs"`
	// OverallTrend compares the last year against the first.
	OverallTrend *YoYChange `json:"overall_trend,omitempty"`
}

// TemporalComparison tracks one sitio across two or more years.
type TemporalComparison struct {
	SitioID   int64            `json:"sitio_id"`
	SitioName string           `json:"sitio_name"`
	Years     []string         `json:"years"`
	Metrics   []TemporalMetric `json:"metrics"`
}

// RankedValue is one sitio's value for a metric with its rank (1 = best).
type RankedValue struct {
	SitioID   int64   `json:"sitio_id"`
	SitioName string  `json:"sitio_name"`
	Value     float64 `json:"value"`
	Rank      int     `json:"rank"`
}

// SpatialMetric compares one metric across sitios for a single year.
type SpatialMetric struct {
	Key            string        `json:"key"`
	Label          string        `json:"label"`
	HigherIsBetter bool          `json:"higher_is_better"`
	Values         []RankedValue `json:"values"`
	Min            float64       `json:"min"`
	Max            float64       `json:"max"`
	Average        float64       `json:"average"`
}

// SpatialComparison compares two or more sitios within one year.
type SpatialComparison struct {
	Year    string          `json:"year"`
	Sitios  []int64         `json:"sitios"`
	Metrics []SpatialMetric `json:"metrics"`
}

// EntityAggregation is one named entity's full aggregation snapshot.
type EntityAggregation struct {
	Name       string              `json:"name"`
	SitioCount int                 `json:"sitio_count"`
	Overview   AggregationOverview `json:"overview"`
}

// AggregateComparison compares named municipalities or barangays in one year.
type AggregateComparison struct {
	Year     string              `json:"year"`
	Level    AggregationLevel    `json:"level"`
	Entities []EntityAggregation `json:"entities"`
}
