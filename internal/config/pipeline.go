package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/banshee-data/scantrack/internal/tracking"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// maxFileSize caps configuration files at 1 MiB.
const maxFileSize = 1 * 1024 * 1024

// PipelineConfig is the root configuration of a scantrack run. Pointer
// fields left nil keep the component's built-in default, so partial files
// are safe. The same schema loads from JSON or TOML.
type PipelineConfig struct {
	Frame    FrameConfig     `json:"frame" toml:"frame"`
	Gimbal   GimbalConfig    `json:"gimbal" toml:"gimbal"`
	Scan     ScanConfig      `json:"scan" toml:"scan"`
	Radar    *RadarConfig    `json:"radar,omitempty" toml:"radar"`
	IR       *IRConfig       `json:"ir,omitempty" toml:"ir"`
	Trackers []TrackerConfig `json:"trackers" toml:"trackers"`
	Onboard  OnboardConfig   `json:"onboard" toml:"onboard"`
	Scenario ScenarioConfig  `json:"scenario" toml:"scenario"`
}

// FrameConfig controls the scheduler.
type FrameConfig struct {
	DT            *float64 `json:"dt,omitempty" toml:"dt"` // s of simulation time per frame
	Frames        *int     `json:"frames,omitempty" toml:"frames"`
	RealTime      *bool    `json:"real_time,omitempty" toml:"real_time"`
	Parallelism   *int     `json:"parallelism,omitempty" toml:"parallelism"`
	FailOnOverrun *bool    `json:"fail_on_overrun,omitempty" toml:"fail_on_overrun"`
}

// LimitsConfig are gimbal travel limits in degrees.
type LimitsConfig struct {
	LowAz  float64 `json:"low_az" toml:"low_az"`
	HighAz float64 `json:"high_az" toml:"high_az"`
	LowEl  float64 `json:"low_el" toml:"low_el"`
	HighEl float64 `json:"high_el" toml:"high_el"`
}

// PointConfig is an azimuth/elevation pair in degrees.
type PointConfig struct {
	Az float64 `json:"az" toml:"az"`
	El float64 `json:"el" toml:"el"`
}

// GimbalConfig configures the servo.
type GimbalConfig struct {
	ServoMode *string       `json:"servo_mode,omitempty" toml:"servo_mode"`
	MaxRate   *float64      `json:"max_rate,omitempty" toml:"max_rate"`
	Limits    *LimitsConfig `json:"limits,omitempty" toml:"limits"`
	Location  *[3]float64   `json:"location,omitempty" toml:"location"`
}

// SearchVolumeConfig derives a bar scan from a volume.
type SearchVolumeConfig struct {
	Width  float64 `json:"width" toml:"width"`
	Height float64 `json:"height" toml:"height"`
	Bars   int     `json:"bars" toml:"bars"`
}

// ScanConfig configures the scan controller.
type ScanConfig struct {
	Mode           *string             `json:"mode,omitempty" toml:"mode"`
	SearchVolume   *SearchVolumeConfig `json:"search_volume,omitempty" toml:"search_volume"`
	Width          *float64            `json:"width,omitempty" toml:"width"`
	NumBars        *int                `json:"num_bars,omitempty" toml:"num_bars"`
	BarSpacing     *float64            `json:"bar_spacing,omitempty" toml:"bar_spacing"`
	ScanRate       *float64            `json:"scan_rate,omitempty" toml:"scan_rate"`
	MaxScanRate    *float64            `json:"max_scan_rate,omitempty" toml:"max_scan_rate"`
	LeftToRight    *bool               `json:"left_to_right,omitempty" toml:"left_to_right"`
	Radius         *float64            `json:"radius,omitempty" toml:"radius"`
	RevPerSec      *float64            `json:"rev_per_sec,omitempty" toml:"rev_per_sec"`
	MaxNumRevs     *int                `json:"max_num_revs,omitempty" toml:"max_num_revs"`
	SpiralPolicy   *string             `json:"spiral_policy,omitempty" toml:"spiral_policy"`
	BeamWidth      *float64            `json:"beam_width,omitempty" toml:"beam_width"`
	Pattern        []PointConfig       `json:"pattern,omitempty" toml:"pattern"`
	Reference      *PointConfig        `json:"reference,omitempty" toml:"reference"`
	ManualPosition *PointConfig        `json:"manual_position,omitempty" toml:"manual_position"`
}

// SensorConfig holds the settings shared by every front end.
type SensorConfig struct {
	Name           string   `json:"name" toml:"name"`
	MaxRange       *float64 `json:"max_range,omitempty" toml:"max_range"` // m
	Threshold      *float64 `json:"threshold,omitempty" toml:"threshold"` // dB
	MaxEmissions   *int     `json:"max_emissions,omitempty" toml:"max_emissions"`
	MaxReports     *int     `json:"max_reports,omitempty" toml:"max_reports"`
	OutputCapacity *int     `json:"output_capacity,omitempty" toml:"output_capacity"`
}

// RadarConfig configures the RF front end.
type RadarConfig struct {
	SensorConfig
	PeakPower      *float64 `json:"peak_power,omitempty" toml:"peak_power"`     // W
	AntennaGain    *float64 `json:"antenna_gain,omitempty" toml:"antenna_gain"` // dB
	Frequency      *float64 `json:"frequency,omitempty" toml:"frequency"`       // Hz
	Bandwidth      *float64 `json:"bandwidth,omitempty" toml:"bandwidth"`       // Hz
	NoiseFigure    *float64 `json:"noise_figure,omitempty" toml:"noise_figure"` // dB
	SystemLoss     *float64 `json:"system_loss,omitempty" toml:"system_loss"`   // dB
	Temperature    *float64 `json:"temperature,omitempty" toml:"temperature"`   // K
	SidelobeLevel  *float64 `json:"sidelobe_level,omitempty" toml:"sidelobe_level"`
	NumSweeps      *int     `json:"num_sweeps,omitempty" toml:"num_sweeps"`
	PtrsPerSweep   *int     `json:"ptrs_per_sweep,omitempty" toml:"ptrs_per_sweep"`
	HoldTime       *float64 `json:"hold_time,omitempty" toml:"hold_time"` // s
	RevolutionGate *bool    `json:"revolution_gate,omitempty" toml:"revolution_gate"`
}

// IRConfig configures the IR front end.
type IRConfig struct {
	SensorConfig
	BandLow     *float64 `json:"band_low,omitempty" toml:"band_low"`   // um
	BandHigh    *float64 `json:"band_high,omitempty" toml:"band_high"` // um
	NEI         *float64 `json:"nei,omitempty" toml:"nei"`             // W/m^2
	Extinction  *float64 `json:"extinction,omitempty" toml:"extinction"`
	FieldOfView *float64 `json:"field_of_view,omitempty" toml:"field_of_view"`
	Merge       *bool    `json:"merge,omitempty" toml:"merge"`
	AzBin       *float64 `json:"az_bin,omitempty" toml:"az_bin"`
	ElBin       *float64 `json:"el_bin,omitempty" toml:"el_bin"`
}

// TrackerConfig configures one track manager and names its inputs.
type TrackerConfig struct {
	Name             string   `json:"name" toml:"name"`
	Kind             string   `json:"kind" toml:"kind"` // air, ground or rwr
	Inputs           []string `json:"inputs" toml:"inputs"`
	MaxTracks        *int     `json:"max_tracks,omitempty" toml:"max_tracks"`
	MaxTrackAge      *float64 `json:"max_track_age,omitempty" toml:"max_track_age"`
	AzGate           *float64 `json:"az_gate,omitempty" toml:"az_gate"`
	ElGate           *float64 `json:"el_gate,omitempty" toml:"el_gate"`
	RangeGate        *float64 `json:"range_gate,omitempty" toml:"range_gate"`
	Alpha            *float64 `json:"alpha,omitempty" toml:"alpha"`
	Beta             *float64 `json:"beta,omitempty" toml:"beta"`
	Gamma            *float64 `json:"gamma,omitempty" toml:"gamma"`
	IGain            *float64 `json:"igain,omitempty" toml:"igain"`
	ProtectRecentAge *float64 `json:"protect_recent_age,omitempty" toml:"protect_recent_age"`
	HistoryLength    *int     `json:"history_length,omitempty" toml:"history_length"`
}

// OnboardConfig configures the onboard computer.
type OnboardConfig struct {
	Name         string   `json:"name" toml:"name"`
	TrackManager *string  `json:"track_manager,omitempty" toml:"track_manager"`
	SpeedFloor   *float64 `json:"speed_floor,omitempty" toml:"speed_floor"` // m/s
	MaxTracks    *int     `json:"max_tracks,omitempty" toml:"max_tracks"`
}

// OwnshipConfig is the ownship start state.
type OwnshipConfig struct {
	Position [3]float64 `json:"position" toml:"position"`
	Velocity [3]float64 `json:"velocity" toml:"velocity"`
}

// TargetConfig is a scripted truth target.
type TargetConfig struct {
	ID          int        `json:"id" toml:"id"`
	Position    [3]float64 `json:"position" toml:"position"`
	Velocity    [3]float64 `json:"velocity" toml:"velocity"`
	RCS         float64    `json:"rcs" toml:"rcs"`
	IFF         int        `json:"iff,omitempty" toml:"iff"`
	Ground      bool       `json:"ground,omitempty" toml:"ground"`
	IRIntensity float64    `json:"ir_intensity,omitempty" toml:"ir_intensity"`
	IRBandLow   float64    `json:"ir_band_low,omitempty" toml:"ir_band_low"`
	IRBandHigh  float64    `json:"ir_band_high,omitempty" toml:"ir_band_high"`
}

// JammerConfig is a scripted noise jammer.
type JammerConfig struct {
	ID        int        `json:"id" toml:"id"`
	Position  [3]float64 `json:"position" toml:"position"`
	ERP       float64    `json:"erp" toml:"erp"`
	Frequency float64    `json:"frequency" toml:"frequency"`
	Bandwidth float64    `json:"bandwidth" toml:"bandwidth"`
}

// ScenarioConfig describes the scripted world.
type ScenarioConfig struct {
	Ownship OwnshipConfig  `json:"ownship" toml:"ownship"`
	Targets []TargetConfig `json:"targets" toml:"targets"`
	Jammers []JammerConfig `json:"jammers,omitempty" toml:"jammers"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyPipelineConfig returns a config with every optional field nil.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// DefaultPipelineConfig returns a runnable configuration: one radar in a
// four-bar search feeding an air track manager, an onboard computer on
// that manager and an empty scenario.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Frame: FrameConfig{
			DT:          ptrFloat64(0.02),
			Frames:      ptrInt(500),
			RealTime:    ptrBool(false),
			Parallelism: ptrInt(0),
		},
		Gimbal: GimbalConfig{
			ServoMode: ptrString("position"),
			MaxRate:   ptrFloat64(120),
		},
		Scan: ScanConfig{
			Mode:         ptrString("horizontal_bar"),
			SearchVolume: &SearchVolumeConfig{Width: 60, Height: 8, Bars: 4},
			ScanRate:     ptrFloat64(60),
		},
		Radar: &RadarConfig{SensorConfig: SensorConfig{Name: "radar"}},
		Trackers: []TrackerConfig{
			{Name: "air", Kind: "air", Inputs: []string{"radar"}},
		},
		Onboard: OnboardConfig{
			Name:         "occ",
			TrackManager: ptrString("air"),
			SpeedFloor:   ptrFloat64(50),
		},
	}
}

// LoadPipelineConfig loads a PipelineConfig from a .json or .toml file of
// at most 1 MiB and validates it.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".toml" {
		return nil, fmt.Errorf("config file must have .json or .toml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config keys: %v", undecoded)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory
// or one of its parents. It panics on failure and is meant for tests.
func MustLoadDefaultConfig() *PipelineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from internal/storage/<pkg>/
	}
	for _, path := range candidates {
		if cfg, err := LoadPipelineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks cross-field consistency. Value ranges are left to the
// component setters, which reject bad values when the config is applied.
func (c *PipelineConfig) Validate() error {
	var errs []error
	if c.Frame.DT != nil && *c.Frame.DT <= 0 {
		errs = append(errs, fmt.Errorf("frame.dt must be positive, got %v", *c.Frame.DT))
	}
	if c.Frame.Frames != nil && *c.Frame.Frames < 0 {
		errs = append(errs, fmt.Errorf("frame.frames must be non-negative, got %d", *c.Frame.Frames))
	}

	sensors := map[string]bool{}
	for _, s := range c.sensorNames() {
		if s == "" {
			errs = append(errs, errors.New("sensor name must not be empty"))
			continue
		}
		if sensors[s] {
			errs = append(errs, fmt.Errorf("duplicate sensor name %q", s))
		}
		sensors[s] = true
	}

	trackers := map[string]bool{}
	for i, t := range c.Trackers {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("trackers[%d]: name must not be empty", i))
		} else if trackers[t.Name] {
			errs = append(errs, fmt.Errorf("trackers[%d]: duplicate name %q", i, t.Name))
		}
		trackers[t.Name] = true
		if _, err := t.TypeBits(); err != nil {
			errs = append(errs, fmt.Errorf("trackers[%d]: %w", i, err))
		}
		for _, in := range t.Inputs {
			if !sensors[in] {
				errs = append(errs, fmt.Errorf("trackers[%d]: unknown input %q", i, in))
			}
		}
	}
	if tm := c.Onboard.TrackManager; tm != nil && !trackers[*tm] {
		errs = append(errs, fmt.Errorf("onboard.track_manager %q is not a configured tracker", *tm))
	}

	ids := map[int]bool{}
	for i, tg := range c.Scenario.Targets {
		if tg.ID <= 0 || ids[tg.ID] {
			errs = append(errs, fmt.Errorf("scenario.targets[%d]: id %d must be positive and unique", i, tg.ID))
		}
		ids[tg.ID] = true
	}
	return errors.Join(errs...)
}

func (c *PipelineConfig) sensorNames() []string {
	var out []string
	if c.Radar != nil {
		out = append(out, c.Radar.Name)
	}
	if c.IR != nil {
		out = append(out, c.IR.Name)
	}
	return out
}

// TypeBits maps the tracker kind to its type bit.
func (t TrackerConfig) TypeBits() (tracking.TypeBits, error) {
	kind, ok := tracking.ParseType(t.Kind)
	if !ok || (kind != tracking.TypeAir && kind != tracking.TypeGround && kind != tracking.TypeRWR) {
		return 0, fmt.Errorf("kind %q must be air, ground or rwr", t.Kind)
	}
	return kind, nil
}

// GetDT returns frame.dt or 0.02 s.
func (c *PipelineConfig) GetDT() float64 {
	if c.Frame.DT == nil {
		return 0.02
	}
	return *c.Frame.DT
}

// GetFrames returns frame.frames or 500. Zero means run until stopped.
func (c *PipelineConfig) GetFrames() int {
	if c.Frame.Frames == nil {
		return 500
	}
	return *c.Frame.Frames
}

// GetRealTime returns frame.real_time or false.
func (c *PipelineConfig) GetRealTime() bool {
	if c.Frame.RealTime == nil {
		return false
	}
	return *c.Frame.RealTime
}

// GetParallelism returns frame.parallelism or 0 (unbounded).
func (c *PipelineConfig) GetParallelism() int {
	if c.Frame.Parallelism == nil {
		return 0
	}
	return *c.Frame.Parallelism
}

// GetFailOnOverrun returns frame.fail_on_overrun or false.
func (c *PipelineConfig) GetFailOnOverrun() bool {
	if c.Frame.FailOnOverrun == nil {
		return false
	}
	return *c.Frame.FailOnOverrun
}

// GetOnboardMaxTracks returns onboard.max_tracks or 50.
func (c *PipelineConfig) GetOnboardMaxTracks() int {
	if c.Onboard.MaxTracks == nil {
		return 50
	}
	return *c.Onboard.MaxTracks
}
