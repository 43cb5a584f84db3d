package analytics

import (
	"log/slog"
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

// TrendDirection labels a single data point's local trend.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
	TrendUnknown    TrendDirection = "unknown"
)

// ClassifyTrend maps a windowed fractional change onto a trend label.
// NaN means insufficient history and classifies as unknown; every real
// value maps to exactly one of the other three labels.
func ClassifyTrend(change, threshold float64) TrendDirection {
	switch {
	case math.IsNaN(change):
		return TrendUnknown
	case change > threshold:
		return TrendIncreasing
	case change < -threshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// TrendPoint is one classified observation. PctChange is the fractional
// change of the rolling average against its value Window periods earlier,
// NaN when undefined.
type TrendPoint struct {
	Date       time.Time
	Location   string
	Value      float64
	RollingAvg float64
	PctChange  float64
	Trend      TrendDirection
}

// TrendSummary is the latest classified point of a filtered series.
type TrendSummary struct {
	Trend        TrendDirection
	Change       float64
	CurrentValue float64
	RollingAvg   float64
	Date         time.Time
}

// Peak is a local maximum in a raw series that clears the prominence bar.
type Peak struct {
	Date     time.Time
	Location string
	Value    float64
}

// Anomaly is a statistical outlier in a filtered series.
type Anomaly struct {
	Date     time.Time
	Location string
	Value    float64
	ZScore   float64
}

// DetectorConfig holds the detection parameters.
type DetectorConfig struct {
	// Window is the rolling-average and percentage-change lag, in rows.
	Window int
	// Threshold is the fractional change beyond which a point counts as
	// increasing or decreasing. 0.1 means ten percent.
	Threshold float64
}

// DefaultDetectorConfig returns the default detection parameters.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{Window: 7, Threshold: 0.1}
}

// Detector classifies trends and finds peaks and anomalies over a
// cleaned dataset. Each point is classified independently from its own
// windowed statistic; there is no transition history.
type Detector struct {
	calc   *Calculator
	cfg    DetectorConfig
	logger *slog.Logger
}

// NewDetector creates a detector over a cleaned dataset.
func NewDetector(ds *models.Dataset, cfg DetectorConfig, logger *slog.Logger) *Detector {
	if cfg.Window <= 0 {
		cfg.Window = 7
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		calc:   NewCalculator(ds, logger),
		cfg:    cfg,
		logger: logger.With("component", "trends"),
	}
}

// Detect classifies every row of the filtered series. The rolling average
// and its lagged fractional change are computed within each location's
// series so locations never bleed into each other.
func (d *Detector) Detect(metric, country string) ([]TrendPoint, error) {
	if err := d.calc.validator.CheckColumns(d.calc.ds, metric); err != nil {
		return nil, err
	}
	sub := d.calc.filter(country, nil)
	col, _ := sub.Column(metric)

	avg := rollingMean(sub, col, d.cfg.Window)
	points := make([]TrendPoint, sub.NumRows())
	for _, rows := range sub.LocationGroups() {
		for pos, r := range rows {
			change := math.NaN()
			if pos >= d.cfg.Window {
				lag := avg[rows[pos-d.cfg.Window]]
				if !math.IsNaN(lag) && !math.IsNaN(avg[r]) && lag != 0 {
					change = (avg[r] - lag) / lag
				}
			}
			raw, _ := col.Float(r)
			points[r] = TrendPoint{
				Date:       sub.Date(r),
				Location:   sub.Location(r),
				Value:      raw,
				RollingAvg: avg[r],
				PctChange:  change,
				Trend:      ClassifyTrend(change, d.cfg.Threshold),
			}
		}
	}
	return points, nil
}

// Summary returns the latest classified point for the filter. An empty
// filtered series yields the neutral {unknown, 0.0} summary rather than
// an error; a missing metric column still fails loud.
func (d *Detector) Summary(metric, country string) (TrendSummary, error) {
	points, err := d.Detect(metric, country)
	if err != nil {
		return TrendSummary{}, err
	}
	if len(points) == 0 {
		d.logger.Warn("trend summary filter matched no rows", "metric", metric, "country", country)
		return TrendSummary{Trend: TrendUnknown}, nil
	}
	last := points[len(points)-1]
	change := last.PctChange
	if math.IsNaN(change) {
		change = 0.0
	}
	avg := last.RollingAvg
	if math.IsNaN(avg) {
		avg = 0.0
	}
	return TrendSummary{
		Trend:        last.Trend,
		Change:       change,
		CurrentValue: last.Value,
		RollingAvg:   avg,
		Date:         last.Date,
	}, nil
}

// DetectPeaks finds local maxima in the raw series whose prominence
// exceeds prominence times the series maximum. Prominence is the vertical
// drop from the peak to the higher of its two flanking bases, where a
// base is the minimum between the peak and the next equal-or-higher point
// on that side.
func (d *Detector) DetectPeaks(metric, country string, prominence float64) ([]Peak, error) {
	if err := d.calc.validator.CheckColumns(d.calc.ds, metric); err != nil {
		return nil, err
	}
	sub := d.calc.filter(country, nil)
	col, _ := sub.Column(metric)

	var peaks []Peak
	for _, rows := range sub.LocationGroups() {
		series := make([]float64, len(rows))
		for pos, r := range rows {
			v, ok := col.Float(r)
			if !ok {
				v = math.NaN()
			}
			series[pos] = v
		}
		seriesMax := maxDefined(series)
		if math.IsNaN(seriesMax) {
			continue
		}
		for pos := 1; pos < len(series)-1; pos++ {
			v := series[pos]
			if math.IsNaN(v) || series[pos-1] >= v || series[pos+1] >= v {
				continue
			}
			if peakProminence(series, pos) >= prominence*seriesMax {
				r := rows[pos]
				peaks = append(peaks, Peak{Date: sub.Date(r), Location: sub.Location(r), Value: v})
			}
		}
	}
	return peaks, nil
}

// DetectAnomalies flags points whose z-score against the mean and sample
// standard deviation of the entire filtered series exceeds stdThreshold.
func (d *Detector) DetectAnomalies(metric, country string, stdThreshold float64) ([]Anomaly, error) {
	if err := d.calc.validator.CheckColumns(d.calc.ds, metric); err != nil {
		return nil, err
	}
	sub := d.calc.filter(country, nil)
	col, _ := sub.Column(metric)

	var values []float64
	for i := 0; i < sub.NumRows(); i++ {
		if v, ok := col.Float(i); ok {
			values = append(values, v)
		}
	}
	if len(values) < 2 {
		return nil, nil
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return nil, err
	}
	std, err := stats.StandardDeviationSample(values)
	if err != nil {
		return nil, err
	}
	if std == 0 {
		return nil, nil
	}

	var anomalies []Anomaly
	for i := 0; i < sub.NumRows(); i++ {
		v, ok := col.Float(i)
		if !ok {
			continue
		}
		z := (v - mean) / std
		if math.Abs(z) > stdThreshold {
			anomalies = append(anomalies, Anomaly{
				Date:     sub.Date(i),
				Location: sub.Location(i),
				Value:    v,
				ZScore:   z,
			})
		}
	}
	if len(anomalies) > 0 {
		d.logger.Info("anomalies detected", "metric", metric, "country", country, "count", len(anomalies))
	}
	return anomalies, nil
}

// rollingMean computes the trailing windowed mean of col within each
// location's series, averaging over however many points are present near
// the start. Entries with no present point in the window carry NaN.
func rollingMean(ds *models.Dataset, col *models.Column, window int) []float64 {
	out := make([]float64, ds.NumRows())
	for i := range out {
		out[i] = math.NaN()
	}
	for _, rows := range ds.LocationGroups() {
		for pos, r := range rows {
			start := pos - window + 1
			if start < 0 {
				start = 0
			}
			var sum float64
			n := 0
			for _, rr := range rows[start : pos+1] {
				if v, ok := col.Float(rr); ok {
					sum += v
					n++
				}
			}
			if n > 0 {
				out[r] = sum / float64(n)
			}
		}
	}
	return out
}

// peakProminence returns the vertical drop from the peak at pos to the
// higher of its two bases. NaN cells bound the search like series edges.
func peakProminence(series []float64, pos int) float64 {
	peak := series[pos]
	leftBase, rightBase := peak, peak
	for i := pos - 1; i >= 0; i-- {
		if math.IsNaN(series[i]) || series[i] >= peak {
			break
		}
		if series[i] < leftBase {
			leftBase = series[i]
		}
	}
	for i := pos + 1; i < len(series); i++ {
		if math.IsNaN(series[i]) || series[i] >= peak {
			break
		}
		if series[i] < rightBase {
			rightBase = series[i]
		}
	}
	base := leftBase
	if rightBase > base {
		base = rightBase
	}
	return peak - base
}

func maxDefined(series []float64) float64 {
	max := math.NaN()
	for _, v := range series {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(max) || v > max {
			max = v
		}
	}
	return max
}
