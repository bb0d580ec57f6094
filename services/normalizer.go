package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/sirupsen/logrus"
)

// UnknownCompanyName is used when an upstream entry carries no name at all
const UnknownCompanyName = "Unknown Company"

// RawIPOItem is one loosely-typed entry of the upstream listing. The source
// mixes snake_case and camelCase keys and changes value types between releases.
type RawIPOItem map[string]any

// Alias key lists, looked up in order; the first truthy value wins.
var (
	nameKeys               = []string{"name"}
	premiumKeys            = []string{"premium"}
	scriptCodeKeys         = []string{"script_code", "scriptCode"}
	iconURLKeys            = []string{"icon_url", "iconUrl"}
	minPriceKeys           = []string{"min_price", "minPrice"}
	maxPriceKeys           = []string{"max_price", "maxPrice"}
	listingPriceKeys       = []string{"listing_price", "listingPrice"}
	lotSizeKeys            = []string{"lot_size", "lotSize"}
	openDateKeys           = []string{"open_date", "open", "openDate"}
	closeDateKeys          = []string{"close_date", "close", "closeDate"}
	allotmentDateKeys      = []string{"allotment_date", "allotmentDate"}
	listingDateKeys        = []string{"listing_date", "listingDate"}
	allotmentLinkKeys      = []string{"allotment_link", "allotmentLink"}
	currentStatusKeys      = []string{"current_status", "currentStatus"}
	premiumLastUpdatedKeys = []string{"premium_last_updated_at", "premiumLastUpdatedAt", "premium_last_updated", "premiumLastUpdated"}
	isBuyerKeys            = []string{"is_buyer", "isBuyer"}
	isSellerKeys           = []string{"is_seller", "isSeller"}
	isPreApplyKeys         = []string{"is_pre_apply", "isPreApply"}
)

var (
	anchorTextPattern   = regexp.MustCompile(`<a[^>]*>([^<]+)</a>`)
	fragmentTextPattern = regexp.MustCompile(`>([^<]+)<`)
	whitespaceRun       = regexp.MustCompile(`[\s\x{000B}\p{Zs}\x{FEFF}\x{2028}\x{2029}]+`)

	premiumWithPercentPattern = regexp.MustCompile(`(\d+)[\s\p{Zs}]*\(([0-9.]+)%\)`)
	firstIntegerPattern       = regexp.MustCompile(`(\d+)`)
	leadingFloatPattern       = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)`)
)

// htmlEntityReplacements are applied in order, so "&amp;lt;" decodes to "<"
var htmlEntityReplacements = [][2]string{
	{"&nbsp;", " "},
	{"&amp;", "&"},
	{"&lt;", "<"},
	{"&gt;", ">"},
	{"&quot;", `"`},
	{"&#39;", "'"},
}

// NameExtractor pulls the display text out of a raw name value. ok is false
// when the strategy does not apply and the next one should be tried.
type NameExtractor struct {
	Name    string
	Extract func(raw string) (text string, ok bool)
}

// DefaultNameExtractors are tried in order: anchor tag, any tag fragment, raw text
var DefaultNameExtractors = []NameExtractor{
	{Name: "anchor", Extract: submatchExtractor(anchorTextPattern)},
	{Name: "tag-fragment", Extract: submatchExtractor(fragmentTextPattern)},
	{Name: "raw", Extract: func(raw string) (string, bool) { return raw, true }},
}

func submatchExtractor(pattern *regexp.Regexp) func(string) (string, bool) {
	return func(raw string) (string, bool) {
		m := pattern.FindStringSubmatch(raw)
		if m == nil {
			return "", false
		}
		return strings.TrimSpace(m[1]), true
	}
}

// Normalizer turns raw upstream entries into store inputs
type Normalizer struct {
	extractors []NameExtractor
	logger     *logrus.Entry
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		extractors: DefaultNameExtractors,
		logger:     logrus.WithField("component", "Normalizer"),
	}
}

// DecodeRawItem decodes a single JSON entry preserving numeric precision
func DecodeRawItem(data json.RawMessage) (RawIPOItem, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, shared.NewEntryError("INVALID_JSON", "entry is not valid JSON", err)
	}
	item, ok := value.(map[string]any)
	if !ok {
		return nil, shared.NewEntryError("NOT_AN_OBJECT", fmt.Sprintf("entry is %s, expected object", jsonKind(value)), nil)
	}
	return RawIPOItem(item), nil
}

// NormalizeEntry decodes and normalizes one entry of the upstream data array
func (n *Normalizer) NormalizeEntry(data json.RawMessage) (models.IPOInput, error) {
	item, err := DecodeRawItem(data)
	if err != nil {
		return models.IPOInput{}, err
	}
	return n.Normalize(item)
}

// Normalize maps a raw item onto the canonical input shape. A scalar field that
// holds an object or array makes the whole entry invalid; a scalar that merely
// fails to parse falls back to the field default.
func (n *Normalizer) Normalize(item RawIPOItem) (models.IPOInput, error) {
	var in models.IPOInput

	rawName, err := item.text(nameKeys)
	if err != nil {
		return in, err
	}
	in.Name = n.ExtractName(rawName)

	premiumText, err := item.text(premiumKeys)
	if err != nil {
		return in, err
	}
	in.Premium, in.PremiumPercentage = ParsePremium(premiumText)

	if in.ScriptCode, err = item.text(scriptCodeKeys); err != nil {
		return in, err
	}
	if in.OpenDate, err = item.text(openDateKeys); err != nil {
		return in, err
	}
	if in.CloseDate, err = item.text(closeDateKeys); err != nil {
		return in, err
	}

	optional := []struct {
		keys   []string
		target **string
	}{
		{iconURLKeys, &in.IconURL},
		{minPriceKeys, &in.MinPrice},
		{maxPriceKeys, &in.MaxPrice},
		{listingPriceKeys, &in.ListingPrice},
		{allotmentDateKeys, &in.AllotmentDate},
		{listingDateKeys, &in.ListingDate},
		{allotmentLinkKeys, &in.AllotmentLink},
	}
	for _, field := range optional {
		value, err := item.text(field.keys)
		if err != nil {
			return in, err
		}
		if value != "" {
			v := value
			*field.target = &v
		}
	}

	if in.LotSize, err = item.integer(lotSizeKeys); err != nil {
		return in, err
	}

	status, err := item.text(currentStatusKeys)
	if err != nil {
		return in, err
	}
	in.CurrentStatus = NormalizeStatus(status)

	updatedText, err := item.text(premiumLastUpdatedKeys)
	if err != nil {
		return in, err
	}
	if updatedText != "" {
		if ts, ok := parseTimestamp(strings.TrimSpace(updatedText)); ok {
			in.PremiumLastUpdated = &ts
		} else {
			n.logger.WithField("value", updatedText).Debug("Unparseable premium timestamp, leaving empty")
		}
	}

	if in.IsBuyer, err = item.boolean(isBuyerKeys); err != nil {
		return in, err
	}
	if in.IsSeller, err = item.boolean(isSellerKeys); err != nil {
		return in, err
	}
	if in.IsPreApply, err = item.boolean(isPreApplyKeys); err != nil {
		return in, err
	}

	in.Exchange = ExtractExchange(in.Name)
	return in, nil
}

// ExtractName applies the name strategies, decodes entities and collapses whitespace
func (n *Normalizer) ExtractName(raw string) string {
	if raw == "" {
		return UnknownCompanyName
	}

	text := raw
	for _, extractor := range n.extractors {
		if extracted, ok := extractor.Extract(raw); ok {
			text = extracted
			break
		}
	}
	return CleanText(text)
}

// CleanText decodes common HTML entities, collapses whitespace runs and trims
func CleanText(text string) string {
	for _, r := range htmlEntityReplacements {
		text = strings.ReplaceAll(text, r[0], r[1])
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// ParsePremium splits a premium cell like "35 (14.3%)" into the absolute
// premium and its percentage. Empty, "0" and "N/A" mean no premium.
func ParsePremium(raw string) (*string, *float64) {
	text := strings.TrimSpace(raw)
	if text == "" || text == "0" || strings.Contains(text, "N/A") {
		return nil, nil
	}

	if m := premiumWithPercentPattern.FindStringSubmatch(text); m != nil {
		premium := m[1]
		return &premium, parsePercentage(m[2])
	}
	if m := firstIntegerPattern.FindStringSubmatch(text); m != nil {
		premium := m[1]
		return &premium, nil
	}
	return nil, nil
}

// parsePercentage reads the leading decimal of s; zero or unparsable yields nil
func parsePercentage(s string) *float64 {
	lead := leadingFloatPattern.FindString(s)
	if lead == "" {
		return nil
	}
	value, err := strconv.ParseFloat(lead, 64)
	if err != nil || value == 0 || math.IsNaN(value) {
		return nil
	}
	return &value
}

// ExtractExchange classifies a normalized name; MAINBOARD wins over the SME boards
func ExtractExchange(name string) string {
	for _, exchange := range []string{models.ExchangeMainboard, models.ExchangeBSESME, models.ExchangeNSESME} {
		if strings.Contains(name, exchange) {
			return exchange
		}
	}
	return models.ExchangeMainboard
}

// NormalizeStatus maps free text onto open, upcoming, closed or unknown
func NormalizeStatus(raw string) string {
	switch status := strings.ToLower(strings.TrimSpace(raw)); status {
	case models.StatusOpen, models.StatusUpcoming, models.StatusClosed:
		return status
	default:
		return models.StatusUnknown
	}
}

// lookup returns the first truthy value among keys
func (item RawIPOItem) lookup(keys []string) (any, string) {
	for _, key := range keys {
		if value, ok := item[key]; ok && truthy(value) {
			return value, key
		}
	}
	return nil, ""
}

// text reads a scalar field as a string, or "" when absent
func (item RawIPOItem) text(keys []string) (string, error) {
	value, key := item.lookup(keys)
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", shared.NewEntryError(
			"NON_SCALAR_FIELD",
			fmt.Sprintf("field %q is %s, expected scalar", key, jsonKind(value)),
			nil,
		)
	}
}

// integer reads a whole number, tolerating thousands separators and "14.0"
func (item RawIPOItem) integer(keys []string) (*int, error) {
	text, err := item.text(keys)
	if err != nil || text == "" {
		return nil, err
	}
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if v, err := strconv.Atoi(text); err == nil {
		if v > math.MaxInt32 || v < math.MinInt32 {
			return nil, nil
		}
		return &v, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil, nil
	}
	v := int(f)
	return &v, nil
}

func (item RawIPOItem) boolean(keys []string) (bool, error) {
	value, key := item.lookup(keys)
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0, nil
	case float64:
		return v != 0, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "yes" || s == "y" {
			return true, nil
		}
		b, err := strconv.ParseBool(s)
		return err == nil && b, nil
	default:
		return false, shared.NewEntryError(
			"NON_SCALAR_FIELD",
			fmt.Sprintf("field %q is %s, expected boolean", key, jsonKind(value)),
			nil,
		)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	// epoch seconds or milliseconds
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}

// truthy mirrors the source's loose emptiness checks
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	case json.Number:
		f, err := v.Float64()
		return err != nil || (f != 0 && !math.IsNaN(f))
	case float64:
		return v != 0 && !math.IsNaN(v)
	default:
		return true
	}
}

func jsonKind(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	default:
		return "number"
	}
}
