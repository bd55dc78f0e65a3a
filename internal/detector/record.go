// Package detector models a single detector's per-interval reading: its
// four independent car/truck flow and speed attributes, the quality
// measure attached to them, and the provenance discipline (a value is
// either a real measurement, a placeholder for "no original data", or a
// forecasted/corrected replacement) that the corrector and gap filler
// depend on to know which values they're still allowed to touch.
package detector

// Attr identifies one of the four independent measurements a detector
// reports each interval.
type Attr int

const (
	QPKW Attr = iota
	QLKW
	VPKW
	VLKW
	numAttrs
)

// String names the attribute the way the quality-bit weight table and the
// corrector's logs refer to it.
func (a Attr) String() string {
	switch a {
	case QPKW:
		return "qPKW"
	case QLKW:
		return "qLKW"
	case VPKW:
		return "vPKW"
	case VLKW:
		return "vLKW"
	default:
		return "unknown"
	}
}

// VehicleClass reports which vehicle category a belongs to.
func (a Attr) VehicleClass() VehicleClass {
	if a == QPKW || a == VPKW {
		return PKW
	}
	return LKW
}

// IsFlow reports whether a is one of the two flow attributes.
func (a Attr) IsFlow() bool { return a == QPKW || a == QLKW }

// FlowAttr returns the flow attribute sharing a's vehicle class.
func (a Attr) FlowAttr() Attr {
	if a.VehicleClass() == PKW {
		return QPKW
	}
	return QLKW
}

// SpeedAttr returns the speed attribute sharing a's vehicle class.
func (a Attr) SpeedAttr() Attr {
	if a.VehicleClass() == PKW {
		return VPKW
	}
	return VLKW
}

// Provenance records where a Record's current values came from.
type Provenance string

const (
	Real     Provenance = "real"
	NoOrig   Provenance = "NO_ORIG"
	Forecast Provenance = "FORECAST"
)

// Record is one detector's four independent readings for one interval:
// car flow/speed and truck flow/speed. fixedSet names which attributes
// were replaced by the gap filler rather than measured.
type Record struct {
	DetectorID string
	QPKW       *float64
	QLKW       *float64
	VPKW       *float64
	VLKW       *float64
	Quality    float64
	Provenance Provenance

	// ErrorPKW/ErrorLKW hold the last classification outcome per vehicle
	// class, for reporting and for the quality-bit weight table.
	ErrorPKW ErrorCode
	ErrorLKW ErrorCode

	fixedSet    uint8 // bit i set iff Attr(i) was fixed rather than measured
	toBeWritten bool
}

// NewRecord builds a Record for a freshly observed measurement.
func NewRecord(detectorID string, qPKW, qLKW, vPKW, vLKW *float64, quality float64) *Record {
	return &Record{
		DetectorID:  detectorID,
		QPKW:        qPKW,
		QLKW:        qLKW,
		VPKW:        vPKW,
		VLKW:        vLKW,
		Quality:     quality,
		Provenance:  Real,
		toBeWritten: true,
	}
}

// Get returns the current value of attr, or nil for an unrecognized attr.
func (r *Record) Get(attr Attr) *float64 {
	switch attr {
	case QPKW:
		return r.QPKW
	case QLKW:
		return r.QLKW
	case VPKW:
		return r.VPKW
	case VLKW:
		return r.VLKW
	default:
		return nil
	}
}

func (r *Record) set(attr Attr, v *float64) {
	switch attr {
	case QPKW:
		r.QPKW = v
	case QLKW:
		r.QLKW = v
	case VPKW:
		r.VPKW = v
	case VLKW:
		r.VLKW = v
	}
}

// IsFixed reports whether attr was set by the gap filler rather than measured.
func (r *Record) IsFixed(attr Attr) bool { return r.fixedSet&(1<<uint(attr)) != 0 }

// Fixed reports whether any attribute has been fixed.
func (r *Record) Fixed() bool { return r.fixedSet != 0 }

// ToBeWritten reports whether the record carries unpersisted changes.
func (r *Record) ToBeWritten() bool { return r.toBeWritten }

// MarkWritten clears the dirty flag once the record has been persisted.
func (r *Record) MarkWritten() { r.toBeWritten = false }

// Fix assigns value to attr after validating it against the fix discipline:
// a flow attribute must be non-negative and must not exceed MaxFlowPerHour;
// a speed attribute requires a known, non-null paired flow (a zero flow
// forces a zero speed) and must not reintroduce a classifier bound
// violation. On success attr is added to fixedSet and the record is marked
// dirty; Fix returns false and leaves the record unchanged otherwise.
func (r *Record) Fix(attr Attr, value *float64) bool {
	if !r.legal(attr, value) {
		return false
	}
	r.set(attr, value)
	r.fixedSet |= 1 << uint(attr)
	r.toBeWritten = true
	return true
}

func (r *Record) legal(attr Attr, value *float64) bool {
	if attr.IsFlow() {
		if value == nil {
			return true
		}
		return *value >= 0 && *value <= MaxFlowPerHour
	}
	flow := r.Get(attr.FlowAttr())
	if flow == nil {
		return false
	}
	if *flow == 0 {
		return value == nil || *value == 0
	}
	if value == nil {
		return true
	}
	vc := attr.VehicleClass()
	if *value < 0 || *value > MaxSpeedKMH[vc] {
		return false
	}
	return *flow <= MaxFlowPerHourFor(vc, *value)
}

// ClearClass nulls both attributes of vc, used when that class's reading
// triggers a flow-affecting classifier error or the hanging-detector check.
func (r *Record) ClearClass(vc VehicleClass) {
	if vc == PKW {
		r.QPKW, r.VPKW = nil, nil
	} else {
		r.QLKW, r.VLKW = nil, nil
	}
	r.toBeWritten = true
}

// ClearSpeed nulls just vc's speed attribute, used by speed-affecting errors.
func (r *Record) ClearSpeed(vc VehicleClass) {
	if vc == PKW {
		r.VPKW = nil
	} else {
		r.VLKW = nil
	}
	r.toBeWritten = true
}

// SetProvenance stamps provenance and marks the record dirty.
func (r *Record) SetProvenance(p Provenance) {
	r.Provenance = p
	r.toBeWritten = true
}

// Unfix clears every attribute in fixedSet back to null, so a subsequent
// re-filling pass never treats a previously fitted value as support.
func (r *Record) Unfix() {
	for a := Attr(0); a < numAttrs; a++ {
		if r.IsFixed(a) {
			r.set(a, nil)
		}
	}
	r.fixedSet = 0
	r.toBeWritten = true
}

// IsReal reports whether this record still holds an unmodified measurement.
func (r *Record) IsReal() bool { return r.Provenance == Real }

// HasFlow reports whether either flow attribute carries a nonzero value,
// mirroring the original pipeline's "if flow:" truthiness check.
func (r *Record) HasFlow() bool {
	return nonzero(r.QPKW) || nonzero(r.QLKW)
}

// HasSpeed reports whether either speed attribute is present.
func (r *Record) HasSpeed() bool {
	return r.VPKW != nil || r.VLKW != nil
}

func nonzero(v *float64) bool { return v != nil && *v != 0 }
