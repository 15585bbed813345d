package dto

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sitiograph/sitio-profile-api/internal/models"
)

// Comparison requests serialise to compact URL query parameters so that any
// result view can be shared as a link. Keys are single letters; list values
// are comma-joined; enums are first-letter coded.

var typeCodes = map[models.ComparisonType]string{
	models.ComparisonTemporal:  "t",
	models.ComparisonSpatial:   "s",
	models.ComparisonAggregate: "a",
}

var typeFromCode = map[string]models.ComparisonType{
	"t": models.ComparisonTemporal,
	"s": models.ComparisonSpatial,
	"a": models.ComparisonAggregate,
}

var groupCodes = []struct {
	code  string
	group models.MetricGroup
}{
	{"d", models.GroupDemographics},
	{"u", models.GroupUtilities},
	{"i", models.GroupInfrastructure},
	{"f", models.GroupFacilities},
	{"l", models.GroupLivelihood},
	{"s", models.GroupSafety},
	{"e", models.GroupEducation},
	{"c", models.GroupCustomFields},
}

var levelCodes = map[models.AggregationLevel]string{
	models.LevelMunicipality: "m",
	models.LevelBarangay:     "b",
}

var levelFromCode = map[string]models.AggregationLevel{
	"m": models.LevelMunicipality,
	"b": models.LevelBarangay,
}

// SerializeComparison encodes a comparison request as URL query parameters.
func SerializeComparison(req models.ComparisonRequest) string {
	values := url.Values{}
	if code, ok := typeCodes[req.Type]; ok {
		values.Set("t", code)
	}
	if len(req.SitioIDs) > 0 {
		ids := make([]string, len(req.SitioIDs))
		for i, id := range req.SitioIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		values.Set("s", strings.Join(ids, ","))
	}
	if len(req.Years) > 0 {
		values.Set("y", strings.Join(req.Years, ","))
	}
	if len(req.MetricGroups) > 0 {
		var codes strings.Builder
		for _, entry := range groupCodes {
			for _, group := range req.MetricGroups {
				if group == entry.group {
					codes.WriteString(entry.code)
					break
				}
			}
		}
		values.Set("m", codes.String())
	}
	if code, ok := levelCodes[req.AggregateLevel]; ok {
		values.Set("al", code)
	}
	if len(req.AggregateEntities) > 0 {
		values.Set("ae", strings.Join(req.AggregateEntities, ","))
	}
	if req.MunicipalityFilter != "" {
		values.Set("mf", req.MunicipalityFilter)
	}
	return values.Encode()
}

// ParseComparison decodes a comparison request from URL query parameters.
func ParseComparison(raw string) (models.ComparisonRequest, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return models.ComparisonRequest{}, fmt.Errorf("parse comparison query: %w", err)
	}
	return ParseComparisonValues(values)
}

// ParseComparisonValues decodes a comparison request from parsed values.
func ParseComparisonValues(values url.Values) (models.ComparisonRequest, error) {
	req := models.ComparisonRequest{}

	code := values.Get("t")
	compType, ok := typeFromCode[code]
	if !ok {
		return req, fmt.Errorf("unknown comparison type code %q", code)
	}
	req.Type = compType

	if raw := values.Get("s"); raw != "" {
		parts := strings.Split(raw, ",")
		req.SitioIDs = make([]int64, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return req, fmt.Errorf("invalid sitio id %q", part)
			}
			req.SitioIDs = append(req.SitioIDs, id)
		}
	}

	if raw := values.Get("y"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				req.Years = append(req.Years, part)
			}
		}
	}

	if raw := values.Get("m"); raw != "" {
		for _, entry := range groupCodes {
			if strings.Contains(raw, entry.code) {
				req.MetricGroups = append(req.MetricGroups, entry.group)
			}
		}
	}

	if code := values.Get("al"); code != "" {
		level, ok := levelFromCode[code]
		if !ok {
			return req, fmt.Errorf("unknown aggregate level code %q", code)
		}
		req.AggregateLevel = level
	}

	if raw := values.Get("ae"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				req.AggregateEntities = append(req.AggregateEntities, part)
			}
		}
	}

	req.MunicipalityFilter = values.Get("mf")

	return req, nil
}
