package apiutil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, models.InvalidField(field, "is required")
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, models.InvalidField(field, "must be greater than 0")
	}
	return value, nil
}

// ParseIDList reads repeated or comma separated ids from the query key.
func ParseIDList(r *http.Request, key string) ([]int64, error) {
	var ids []int64
	for _, value := range r.URL.Query()[key] {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := ParsePositiveInt64Field(part, key)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func ParseDateField(raw string, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, models.InvalidField(field, "is required")
	}
	date, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, models.InvalidField(field, "must be YYYY-MM-DD")
	}
	return date, nil
}

// ParseLocalTime combines a date with an HH:MM wall-clock label. "24:00"
// resolves to the following midnight.
func ParseLocalTime(date time.Time, raw string, field string) (time.Time, error) {
	minute, err := models.ParseClock(raw)
	if err != nil {
		return time.Time{}, models.InvalidField(field, fmt.Sprintf("must be HH:MM, got %q", raw))
	}
	return models.At(date, minute), nil
}
