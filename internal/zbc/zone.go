package zbc

// ZoneType classifies the write semantics of a zone.
type ZoneType byte

const (
	ZoneTypeConventional        ZoneType = 0x1
	ZoneTypeSequentialRequired  ZoneType = 0x2
	ZoneTypeSequentialPreferred ZoneType = 0x3
)

// IsConventional returns true for zones with no write-pointer semantics.
func (t ZoneType) IsConventional() bool {
	return t == ZoneTypeConventional
}

func (t ZoneType) String() string {
	switch t {
	case ZoneTypeConventional:
		return "conventional"
	case ZoneTypeSequentialRequired:
		return "seq-required"
	case ZoneTypeSequentialPreferred:
		return "seq-preferred"
	}
	return "unknown"
}

// ZoneCondition is the device-managed state of a zone. The device owns
// all transitions; this layer only reports them.
type ZoneCondition byte

const (
	ZoneCondEmpty            ZoneCondition = 0x0
	ZoneCondImplicitOpen     ZoneCondition = 0x1
	ZoneCondExplicitOpen     ZoneCondition = 0x2
	ZoneCondClosed           ZoneCondition = 0x3
	ZoneCondFull             ZoneCondition = 0x4
	ZoneCondReadOnly         ZoneCondition = 0x5
	ZoneCondOffline          ZoneCondition = 0x6
	ZoneCondResetRecommended ZoneCondition = 0x7
)

func (c ZoneCondition) String() string {
	switch c {
	case ZoneCondEmpty:
		return "empty"
	case ZoneCondImplicitOpen:
		return "imp-open"
	case ZoneCondExplicitOpen:
		return "exp-open"
	case ZoneCondClosed:
		return "closed"
	case ZoneCondFull:
		return "full"
	case ZoneCondReadOnly:
		return "read-only"
	case ZoneCondOffline:
		return "offline"
	case ZoneCondResetRecommended:
		return "reset-recommended"
	}
	return "unknown"
}

// ReportingOption filters which zones a REPORT ZONES command returns.
// Only the low 4 bits are transmitted.
type ReportingOption byte

const (
	ReportAll          ReportingOption = 0x0
	ReportEmpty        ReportingOption = 0x1
	ReportImplicitOpen ReportingOption = 0x2
	ReportExplicitOpen ReportingOption = 0x3
	ReportClosed       ReportingOption = 0x4
	ReportFull         ReportingOption = 0x5
	ReportReadOnly     ReportingOption = 0x6
	ReportOffline      ReportingOption = 0x7
	ReportNeedReset    ReportingOption = 0x8
)

// Zone is one zone record decoded from a REPORT ZONES reply. Records
// are produced fresh on every report; nothing is cached across calls.
type Zone struct {
	Type         ZoneType
	Condition    ZoneCondition
	Start        uint64 // first LBA of the zone
	Length       uint64 // zone length in logical blocks
	WritePointer uint64 // next writable LBA (sequential zones only)
	NeedReset    bool
}

// End returns the first LBA past the zone.
func (z Zone) End() uint64 {
	return z.Start + z.Length
}
