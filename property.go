package drmcore

// PropertyKind selects the validation contract of a Property.
type PropertyKind int

const (
	PropertyRange PropertyKind = iota
	PropertyEnum
	PropertyBlob
	PropertyObject
)

// Property is a typed key shared by the legacy and atomic configuration
// paths. The device registers the standard set at construction time.
type Property struct {
	id   uint32
	name string
	kind PropertyKind

	// Range bounds, inclusive.
	min, max uint64

	// Enum values.
	values map[uint64]string

	// Object variant accepted by an object property.
	objectType ObjectType
}

func (p *Property) ID() uint32         { return p.id }
func (p *Property) Name() string       { return p.name }
func (p *Property) Kind() PropertyKind { return p.kind }

// EnumValues returns the value->name table of an enum property.
func (p *Property) EnumValues() map[uint64]string { return p.values }

// RangeBounds returns the inclusive bounds of a range property.
func (p *Property) RangeBounds() (uint64, uint64) { return p.min, p.max }

// validate checks a raw integer value against the property contract.
// Blob and object properties are validated during capture, where the
// referenced object can be resolved.
func (p *Property) validate(value uint64) error {
	switch p.kind {
	case PropertyRange:
		if value < p.min || value > p.max {
			return validationErr(0, "property %q: value %d outside [%d, %d]",
				p.name, value, p.min, p.max)
		}
	case PropertyEnum:
		if _, ok := p.values[value]; !ok {
			return validationErr(0, "property %q: %d is not an enum value", p.name, value)
		}
	}
	return nil
}

// Assignment binds a property of one mode object to a value. Exactly one
// of Value, BlobValue and ObjectValue is meaningful, selected by the
// property kind; a nil BlobValue or ObjectValue clears the binding.
type Assignment struct {
	Object      ModeObject
	Property    *Property
	Value       uint64
	BlobValue   *Blob
	ObjectValue ModeObject
}

// AssignInt binds an integer or enum property.
func AssignInt(obj ModeObject, prop *Property, value uint64) Assignment {
	return Assignment{Object: obj, Property: prop, Value: value}
}

// AssignBlob binds a blob property.
func AssignBlob(obj ModeObject, prop *Property, blob *Blob) Assignment {
	return Assignment{Object: obj, Property: prop, BlobValue: blob}
}

// AssignObject binds an object property.
func AssignObject(obj ModeObject, prop *Property, target ModeObject) Assignment {
	return Assignment{Object: obj, Property: prop, ObjectValue: target}
}
