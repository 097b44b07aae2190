package config

import (
	"fmt"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/rtm0/era5cds/internal/era5"
)

// Request document keys. Apart from collection they are the request keys of
// the service.
const (
	ReqCollection     = "collection"
	ReqProductType    = "product_type"
	ReqVariable       = "variable"
	ReqYear           = "year"
	ReqMonth          = "month"
	ReqDay            = "day"
	ReqTime           = "time"
	ReqArea           = "area"
	ReqGrid           = "grid"
	ReqFormat         = "format"
	ReqDownloadFormat = "download_format"
)

// LoadRequest reads a request document (YAML, JSON or TOML, by extension)
// and applies the keys it sets on top of base. Keys it does not set keep the
// values of base and collection.
func LoadRequest(path string, base era5.Request, collection string) (era5.Request, string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return base, collection, fmt.Errorf("cannot read request document %s: %w", path, err)
	}

	req := base.Clone()
	if v.IsSet(ReqCollection) {
		collection = v.GetString(ReqCollection)
	}
	if v.IsSet(ReqProductType) {
		req.ProductType = v.GetString(ReqProductType)
	}
	for key, dst := range map[string]*[]string{
		ReqVariable: &req.Variables,
		ReqYear:     &req.Years,
		ReqMonth:    &req.Months,
		ReqDay:      &req.Days,
		ReqTime:     &req.Times,
	} {
		if !v.IsSet(key) {
			continue
		}
		items, err := stringsFrom(v.Get(key), key)
		if err != nil {
			return base, collection, fmt.Errorf("%s: %w", path, err)
		}
		*dst = items
	}
	if v.IsSet(ReqArea) {
		if err := floatsInto(v.Get(ReqArea), req.Area[:], ReqArea); err != nil {
			return base, collection, fmt.Errorf("%s: %w", path, err)
		}
	}
	if v.IsSet(ReqGrid) {
		if err := floatsInto(v.Get(ReqGrid), req.Grid[:], ReqGrid); err != nil {
			return base, collection, fmt.Errorf("%s: %w", path, err)
		}
	}
	if v.IsSet(ReqFormat) {
		req.Format = v.GetString(ReqFormat)
	}
	if v.IsSet(ReqDownloadFormat) {
		req.DownloadFormat = v.GetString(ReqDownloadFormat)
	}
	return req, collection, nil
}

// stringsFrom reads a list of strings, or a single string, without
// converting other scalars. YAML reads an unquoted 03 as the number 3, which
// the service would not match against "03".
func stringsFrom(value any, key string) ([]string, error) {
	if s, ok := value.(string); ok {
		return []string{s}, nil
	}
	items, err := cast.ToSliceE(value)
	if err != nil {
		return nil, fmt.Errorf("%s must be a list of strings: %w", key, err)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a quoted string, got %v", key, i, item)
		}
		out[i] = s
	}
	return out, nil
}

// floatsInto copies a list of exactly len(dst) numbers into dst.
func floatsInto(value any, dst []float64, key string) error {
	items, err := cast.ToSliceE(value)
	if err != nil {
		return fmt.Errorf("%s must be a list of %d numbers: %w", key, len(dst), err)
	}
	if len(items) != len(dst) {
		return fmt.Errorf("%s must have %d numbers, got %d", key, len(dst), len(items))
	}
	for i, item := range items {
		f, err := cast.ToFloat64E(item)
		if err != nil {
			return fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		dst[i] = f
	}
	return nil
}
