package thing

import (
	"sync/atomic"
)

// DeviceTypeClimate is the DeviceType of air conditioners, the only type
// the bridge exposes.
const DeviceTypeClimate = 1

// Record is one entry of the account's device listing.
type Record struct {
	ThingName        string `json:"ThingName"`
	CustomDeviceName string `json:"CustomDeviceName"`
	DeviceType       int    `json:"DeviceType"`
}

// Thing is one device in the directory.
//
// Name, CustomName and DeviceType are fixed at construction. The payload
// slots are swapped atomically and are safe to read from any goroutine.
type Thing struct {
	Name       string
	CustomName string
	DeviceType int

	status       atomic.Pointer[Payload]
	registration atomic.Pointer[Payload]
}

// New creates a Thing from a listing record with both slots empty.
func New(r Record) *Thing {
	return &Thing{
		Name:       r.ThingName,
		CustomName: r.CustomDeviceName,
		DeviceType: r.DeviceType,
	}
}

// IsClimate reports whether the device is an air conditioner.
func (t *Thing) IsClimate() bool {
	return t.DeviceType == DeviceTypeClimate
}

// Status returns a copy of the latest status payload, or nil if none has
// arrived.
func (t *Thing) Status() Payload {
	if p := t.status.Load(); p != nil {
		return p.Clone()
	}
	return nil
}

// Registration returns a copy of the latest registration payload, or nil.
func (t *Thing) Registration() Payload {
	if p := t.registration.Load(); p != nil {
		return p.Clone()
	}
	return nil
}

// HasStatus reports whether a status payload has ever been applied.
func (t *Thing) HasStatus() bool {
	return t.status.Load() != nil
}

// setStatus and setRegistration copy p so later mutation by the caller
// cannot leak into the published slot.
func (t *Thing) setStatus(p Payload) {
	c := p.Clone()
	if c == nil {
		c = Payload{}
	}
	t.status.Store(&c)
}

func (t *Thing) setRegistration(p Payload) {
	c := p.Clone()
	if c == nil {
		c = Payload{}
	}
	t.registration.Store(&c)
}

func (t *Thing) slot(s Slot) Payload {
	var p *Payload
	if s == SlotRegistration {
		p = t.registration.Load()
	} else {
		p = t.status.Load()
	}
	if p == nil {
		return nil
	}
	return *p
}

// Field reads a named field through the accessor table.
// Unknown names, absent payloads and absent keys all report false.
func (t *Thing) Field(name string) (any, bool) {
	f, ok := LookupField(name)
	if !ok {
		return nil, false
	}
	return f.Extract(t.slot(f.Slot))
}

// Bool reads a KindBool field.
func (t *Thing) Bool(name string) (bool, bool) {
	v, ok := t.Field(name)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Int reads a KindInt field.
func (t *Thing) Int(name string) (int, bool) {
	v, ok := t.Field(name)
	if !ok {
		return 0, false
	}
	i, ok := v.(int)
	return i, ok
}

// Model returns the model name from the registration payload.
func (t *Thing) Model() (string, bool) {
	return t.stringField(FieldModel)
}

// FirmwareVersion returns the firmware version from the registration payload.
func (t *Thing) FirmwareVersion() (string, bool) {
	return t.stringField(FieldFirmwareVersion)
}

func (t *Thing) stringField(name string) (string, bool) {
	v, ok := t.Field(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// TemperatureRange returns the permitted setpoint range. The registration
// payload packs it into TemperatureSetting: high byte min, low byte max.
func (t *Thing) TemperatureRange() (lo, hi int, ok bool) {
	packed, ok := toIntField(t.slot(SlotRegistration), FieldTemperatureSetting)
	if !ok {
		return 0, 0, false
	}
	return (packed >> 8) & 0xFF, packed & 0xFF, true
}

func toIntField(p Payload, key string) (int, bool) {
	if p == nil {
		return 0, false
	}
	raw, ok := p[key]
	if !ok {
		return 0, false
	}
	return toInt(raw)
}

// Snapshot is an immutable copy of a Thing for notifications and API output.
type Snapshot struct {
	Name         string  `json:"thing_name"`
	CustomName   string  `json:"custom_name"`
	DeviceType   int     `json:"device_type"`
	Status       Payload `json:"status"`
	Registration Payload `json:"registration"`
}

// Snapshot copies the current state of the Thing.
func (t *Thing) Snapshot() Snapshot {
	return Snapshot{
		Name:         t.Name,
		CustomName:   t.CustomName,
		DeviceType:   t.DeviceType,
		Status:       t.Status(),
		Registration: t.Registration(),
	}
}
