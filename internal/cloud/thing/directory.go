package thing

// Directory maps device names to Things.
//
// The set of Things is fixed when the directory is built; only the payload
// slots of existing entries change afterwards, so lookups need no lock.
// A logout or re-login builds a new Directory.
type Directory struct {
	things map[string]*Thing
	order  []string
}

// NewDirectory builds a directory from listing records. Records with an
// empty or duplicate name are skipped; the first occurrence wins.
func NewDirectory(records []Record) *Directory {
	d := &Directory{
		things: make(map[string]*Thing, len(records)),
		order:  make([]string, 0, len(records)),
	}
	for _, r := range records {
		if r.ThingName == "" {
			continue
		}
		if _, dup := d.things[r.ThingName]; dup {
			continue
		}
		d.things[r.ThingName] = New(r)
		d.order = append(d.order, r.ThingName)
	}
	return d
}

// Lookup returns the Thing with the given device name.
func (d *Directory) Lookup(name string) (*Thing, bool) {
	if d == nil {
		return nil, false
	}
	t, ok := d.things[name]
	return t, ok
}

// LookupByCustomName returns the device name of the first Thing, in listing
// order, whose custom name matches.
func (d *Directory) LookupByCustomName(customName string) (string, bool) {
	if d == nil {
		return "", false
	}
	for _, name := range d.order {
		if d.things[name].CustomName == customName {
			return name, true
		}
	}
	return "", false
}

// Names returns device names in listing order.
func (d *Directory) Names() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Things returns all Things in listing order.
func (d *Directory) Things() []*Thing {
	if d == nil {
		return nil
	}
	out := make([]*Thing, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.things[name])
	}
	return out
}

// Len returns the number of Things.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.order)
}

// ApplyStatus replaces the status slot of the named Thing wholesale.
// It reports false if the name is unknown.
func (d *Directory) ApplyStatus(name string, p Payload) bool {
	t, ok := d.Lookup(name)
	if !ok {
		return false
	}
	t.setStatus(p)
	return true
}

// ApplyRegistration replaces the registration slot of the named Thing.
func (d *Directory) ApplyRegistration(name string, p Payload) bool {
	t, ok := d.Lookup(name)
	if !ok {
		return false
	}
	t.setRegistration(p)
	return true
}
