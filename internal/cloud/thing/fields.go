package thing

import (
	"fmt"
	"sort"
)

// Kind is the Go type a field value is extracted as.
type Kind int

const (
	// KindBool fields read as bool. The cloud encodes them as true/false or 1/0.
	KindBool Kind = iota
	// KindInt fields read as int.
	KindInt
	// KindString fields read as string.
	KindString
)

// String returns the kind name used in API responses.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Slot identifies which payload a field is read from.
type Slot int

const (
	SlotStatus Slot = iota
	SlotRegistration
)

// Field describes one known device field.
type Field struct {
	Name string
	Kind Kind
	Slot Slot

	// Writable fields may be sent in a control command.
	Writable bool

	// HostOnly fields may only be commanded by the account that owns the
	// device family.
	HostOnly bool
}

// Status field names.
const (
	FieldSwitch                         = "Switch"
	FieldMode                           = "Mode"
	FieldTemperatureSetting             = "TemperatureSetting"
	FieldIndoorTemperature              = "IndoorTemperature"
	FieldIndoorHumidity                 = "IndoorHumidity"
	FieldPM25                           = "PM25"
	FieldFanSpeed                       = "FanSpeed"
	FieldVerticalWindDirectionSwitch    = "VerticalWindDirectionSwitch"
	FieldHorizontalWindDirectionSetting = "HorizontalWindDirectionSetting"
	FieldQuickMode                      = "QuickMode"
	FieldCleanSwitch                    = "CleanSwitch"
	FieldCleanNotification              = "CleanNotification"
)

// Registration field names.
const (
	FieldModel           = "Model"
	FieldFirmwareVersion = "FirmwareVersion"
)

// Mode values accepted by FieldMode.
const (
	ModeCool    = 0
	ModeDry     = 1
	ModeFanOnly = 2
	ModeAuto    = 3
	ModeHeat    = 4
)

// Fan speed bounds accepted by FieldFanSpeed.
const (
	FanSpeedMin = 0
	FanSpeedMax = 6
)

var fieldTable = map[string]Field{
	FieldSwitch:                         {Name: FieldSwitch, Kind: KindBool, Writable: true},
	FieldMode:                           {Name: FieldMode, Kind: KindInt, Writable: true},
	FieldTemperatureSetting:             {Name: FieldTemperatureSetting, Kind: KindInt, Writable: true},
	FieldIndoorTemperature:              {Name: FieldIndoorTemperature, Kind: KindInt},
	FieldIndoorHumidity:                 {Name: FieldIndoorHumidity, Kind: KindInt},
	FieldPM25:                           {Name: FieldPM25, Kind: KindInt},
	FieldFanSpeed:                       {Name: FieldFanSpeed, Kind: KindInt, Writable: true},
	FieldVerticalWindDirectionSwitch:    {Name: FieldVerticalWindDirectionSwitch, Kind: KindInt, Writable: true},
	FieldHorizontalWindDirectionSetting: {Name: FieldHorizontalWindDirectionSetting, Kind: KindInt, Writable: true},
	FieldQuickMode:                      {Name: FieldQuickMode, Kind: KindBool, Writable: true, HostOnly: true},
	FieldCleanSwitch:                    {Name: FieldCleanSwitch, Kind: KindBool, Writable: true, HostOnly: true},
	FieldCleanNotification:              {Name: FieldCleanNotification, Kind: KindBool},

	FieldModel:           {Name: FieldModel, Kind: KindString, Slot: SlotRegistration},
	FieldFirmwareVersion: {Name: FieldFirmwareVersion, Kind: KindString, Slot: SlotRegistration},
}

// LookupField returns the accessor entry for name.
func LookupField(name string) (Field, bool) {
	f, ok := fieldTable[name]
	return f, ok
}

// Fields returns every known field sorted by name.
func Fields() []Field {
	out := make([]Field, 0, len(fieldTable))
	for _, f := range fieldTable {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Extract reads the field from p with the field's kind. It reports false
// when p is nil, the key is absent, or the value has the wrong shape.
func (f Field) Extract(p Payload) (any, bool) {
	if p == nil {
		return nil, false
	}
	raw, ok := p[f.Name]
	if !ok || raw == nil {
		return nil, false
	}
	switch f.Kind {
	case KindBool:
		return toBool(raw)
	case KindInt:
		return toInt(raw)
	case KindString:
		return toString(raw)
	default:
		return nil, false
	}
}

// Encode converts a caller-supplied value into the wire value for a control
// command. Booleans are sent as 1/0, which is what the devices expect.
func (f Field) Encode(value any) (int, error) {
	if !f.Writable {
		return 0, fmt.Errorf("%w: %s", ErrReadOnlyField, f.Name)
	}

	var (
		v  int
		ok bool
	)
	switch f.Kind {
	case KindBool:
		var b bool
		b, ok = toBool(value)
		if b {
			v = 1
		}
	case KindInt:
		v, ok = toInt(value)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s expects %s, got %T", ErrInvalidValue, f.Name, f.Kind, value)
	}

	switch f.Name {
	case FieldMode:
		if v < ModeCool || v > ModeHeat {
			return 0, fmt.Errorf("%w: mode %d out of range", ErrInvalidValue, v)
		}
	case FieldFanSpeed:
		if v < FanSpeedMin || v > FanSpeedMax {
			return 0, fmt.Errorf("%w: fan speed %d out of range", ErrInvalidValue, v)
		}
	}
	return v, nil
}
