package detector

import "math"

// VehicleClass distinguishes the two detector-reported vehicle categories
// the classifier's maximum-flow bound depends on.
type VehicleClass string

const (
	PKW VehicleClass = "PKW"
	LKW VehicleClass = "LKW"
)

// Physical bounds the classifier checks raw detector readings against.
// PKW/LKW vehicle lengths are in meters, MaxSpeed in km/h, MaxFlow in
// vehicles/hour for a single lane.
const (
	MaxFlowPerHour = 2500.0

	kmhMultiplier = 1000.0 / 3600.0
)

var (
	MaxSpeedKMH = map[VehicleClass]float64{PKW: 250, LKW: 120}
	VehicleLen  = map[VehicleClass]float64{PKW: 5, LKW: 10}
)

// ErrorCode enumerates the classifier's reject reasons. The numbering
// matches the fixed, closed set of reasons the correction contract
// reports per attribute; 3 is intentionally unused.
type ErrorCode int

const (
	OK                     ErrorCode = 0
	ErrFlowNull            ErrorCode = 1
	ErrNegativeValue       ErrorCode = 2
	ErrHangingDetector     ErrorCode = 4
	ErrSpeedWithoutFlow    ErrorCode = 5
	ErrFlowWithoutSpeed    ErrorCode = 6
	ErrFlowExceedsMax      ErrorCode = 7
	ErrImplausibleCount    ErrorCode = 8
	ErrSpeedExceedsLaneMax ErrorCode = 9
)

// MaxFlowPerHourFor returns the physically possible maximum flow (veh/h)
// for a lane carrying vehicles of class vc travelling at speedKMH, derived
// from vehicle length plus a safety headway: a faster-moving, shorter
// vehicle can pack more units per hour past a fixed point.
func MaxFlowPerHourFor(vc VehicleClass, speedKMH float64) float64 {
	length := VehicleLen[vc]
	if speedKMH <= 0 {
		speedKMH = MaxSpeedKMH[vc]
	}
	return speedKMH * 3600 / (speedKMH*kmhMultiplier*0.4 + length)
}

// ClassifyPair checks one vehicle class's flow/speed pair against the
// physical bounds and returns the first violated ErrorCode, or OK if none.
// laneSpeedLimit is the posted speed limit for this detector's lane; pass
// 0 when it is unknown to skip the lane-overspeed check (error 9), which
// is distinct from the hard physical cap MaxSpeedKMH already enforces.
func ClassifyPair(vc VehicleClass, flow, speed *float64, laneSpeedLimit float64) ErrorCode {
	if flow == nil {
		return ErrFlowNull
	}
	if *flow < 0 || (speed != nil && *speed < 0) {
		return ErrNegativeValue
	}
	if speed != nil && *speed > 0 && *flow == 0 {
		return ErrSpeedWithoutFlow
	}
	if *flow > MaxFlowPerHour || (speed != nil && *speed > MaxSpeedKMH[vc]) {
		return ErrFlowExceedsMax
	}
	if speed != nil && *speed > 0 && *flow > MaxFlowPerHourFor(vc, *speed) {
		return ErrImplausibleCount
	}
	if *flow > 0 && speed != nil && *speed == 0 {
		return ErrFlowWithoutSpeed
	}
	if speed != nil && laneSpeedLimit > 0 && *speed/laneSpeedLimit > 1.25 {
		return ErrSpeedExceedsLaneMax
	}
	return OK
}

// IsFlowAffecting reports whether code nulls both the flow and speed
// attribute of the offending class, as opposed to only the speed.
func (c ErrorCode) IsFlowAffecting() bool {
	switch c {
	case ErrFlowNull, ErrNegativeValue, ErrSpeedWithoutFlow, ErrFlowExceedsMax, ErrImplausibleCount:
		return true
	default:
		return false
	}
}

// IsFatal is an alias for IsFlowAffecting, kept for callers that only need
// to know whether a reading must be discarded rather than down-weighted.
func (c ErrorCode) IsFatal() bool { return c.IsFlowAffecting() }

// String names the error code for logging.
func (c ErrorCode) String() string {
	switch c {
	case OK:
		return "ok"
	case ErrFlowNull:
		return "flow_null"
	case ErrNegativeValue:
		return "negative_value"
	case ErrHangingDetector:
		return "hanging_detector"
	case ErrSpeedWithoutFlow:
		return "speed_without_flow"
	case ErrFlowWithoutSpeed:
		return "flow_without_speed"
	case ErrFlowExceedsMax:
		return "flow_exceeds_max"
	case ErrImplausibleCount:
		return "implausible_count"
	case ErrSpeedExceedsLaneMax:
		return "speed_exceeds_lane_max"
	default:
		return "unknown"
	}
}

// Hanging reports whether current repeats the same four raw attribute
// values as every one of the preceding 5 slots (the "hanging detector"
// check): preceding must hold at least 5 entries, chronologically
// ordered oldest-first, and the comparison uses the raw, not-yet-fixed
// values so a detector genuinely stuck at a constant reading is caught
// before the gap filler ever touches it.
func Hanging(preceding []*Record, current *Record) bool {
	if len(preceding) < 5 {
		return false
	}
	last5 := preceding[len(preceding)-5:]
	for _, p := range last5 {
		if p == nil || !sameReading(p, current) {
			return false
		}
	}
	return true
}

func sameReading(a, b *Record) bool {
	return floatPtrEqual(a.QPKW, b.QPKW) && floatPtrEqual(a.QLKW, b.QLKW) &&
		floatPtrEqual(a.VPKW, b.VPKW) && floatPtrEqual(a.VLKW, b.VLKW)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ClassifyRecord runs the full per-interval classifier against current,
// given the preceding (chronologically ordered) slots for the
// hanging-detector check and whether this deployment reports truck (LKW)
// readings at all. It mutates current in place: a hanging detector nulls
// all four attributes; otherwise each vehicle class is classified
// independently, with flow-affecting errors nulling both of that class's
// attributes and speed-affecting errors nulling only its speed. When
// hasLKW is false, LKW readings are cleared to nil and never classified,
// matching the deployments that only instrument car traffic.
func ClassifyRecord(current *Record, preceding []*Record, hasLKW bool, laneSpeedLimit float64) (errPKW, errLKW ErrorCode) {
	if Hanging(preceding, current) {
		current.ClearClass(PKW)
		current.ClearClass(LKW)
		current.ErrorPKW, current.ErrorLKW = ErrHangingDetector, ErrHangingDetector
		return ErrHangingDetector, ErrHangingDetector
	}

	errPKW = ClassifyPair(PKW, current.QPKW, current.VPKW, laneSpeedLimit)
	applyClassification(current, PKW, errPKW)

	if hasLKW {
		errLKW = ClassifyPair(LKW, current.QLKW, current.VLKW, laneSpeedLimit)
		applyClassification(current, LKW, errLKW)
	} else {
		current.QLKW, current.VLKW = nil, nil
		errLKW = OK
	}

	current.ErrorPKW, current.ErrorLKW = errPKW, errLKW
	return errPKW, errLKW
}

func applyClassification(r *Record, vc VehicleClass, code ErrorCode) {
	if code == OK {
		return
	}
	if code.IsFlowAffecting() {
		r.ClearClass(vc)
	} else {
		r.ClearSpeed(vc)
	}
}

// clampNonNegative guards against float rounding pushing a corrected value
// just below zero.
func clampNonNegative(v float64) float64 {
	return math.Max(0, v)
}
