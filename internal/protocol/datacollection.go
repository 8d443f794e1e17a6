package protocol

import (
	"encoding/json"
	"strings"
)

// Attribute is a has_attribute(target, name, value) fact.
type Attribute [3]string

// Action is a performs_action(actor, action, param1, param2) fact.
type Action [4]string

// DataCollection accumulates the facts an entity exports for one update.
type DataCollection struct {
	attributes []Attribute
	actions    []Action
}

func NewDataCollection() *DataCollection { return &DataCollection{} }

func (d *DataCollection) AddAttribute(target, name, value string) {
	d.attributes = append(d.attributes, Attribute{target, name, value})
}

func (d *DataCollection) AddAction(actor, action, p1, p2 string) {
	d.actions = append(d.actions, Action{actor, action, p1, p2})
}

// AddFrom appends every fact from src, keeping order.
func (d *DataCollection) AddFrom(src *DataCollection) {
	if src == nil {
		return
	}
	d.attributes = append(d.attributes, src.attributes...)
	d.actions = append(d.actions, src.actions...)
}

func (d *DataCollection) Clear() {
	d.attributes = d.attributes[:0]
	d.actions = d.actions[:0]
}

func (d *DataCollection) Attributes() []Attribute { return append([]Attribute(nil), d.attributes...) }
func (d *DataCollection) Actions() []Action       { return append([]Action(nil), d.actions...) }

// Attribute returns the value of the last attribute matching target and name.
func (d *DataCollection) Attribute(target, name string) (string, bool) {
	for i := len(d.attributes) - 1; i >= 0; i-- {
		a := d.attributes[i]
		if a[0] == target && a[1] == name {
			return a[2], true
		}
	}
	return "", false
}

type dataCollectionJSON struct {
	HasAttribute   []Attribute `json:"has_attribute"`
	PerformsAction []Action    `json:"performs_action"`
}

// ToJSON renders {"has_attribute":[[t,n,v]...],"performs_action":[[a,n,p1,p2]...]}.
func (d *DataCollection) ToJSON() string {
	v := dataCollectionJSON{
		HasAttribute:   d.attributes,
		PerformsAction: d.actions,
	}
	if v.HasAttribute == nil {
		v.HasAttribute = []Attribute{}
	}
	if v.PerformsAction == nil {
		v.PerformsAction = []Action{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// ToPredicates renders one line per fact, actions first.
func (d *DataCollection) ToPredicates() string {
	var sb strings.Builder
	for _, a := range d.actions {
		sb.WriteString("performs_action (")
		sb.WriteString(strings.Join(a[:], ", "))
		sb.WriteString(")\n")
	}
	for _, a := range d.attributes {
		sb.WriteString("has_attribute (")
		sb.WriteString(strings.Join(a[:], ", "))
		sb.WriteString(")\n")
	}
	return sb.String()
}

// Render picks the marshaller matching f. Predicate is used for anything but JSON.
func (d *DataCollection) Render(f MessageFormat) string {
	if f == FormatJSON {
		return d.ToJSON()
	}
	return d.ToPredicates()
}

// ParseDataCollection decodes the JSON form produced by ToJSON.
func ParseDataCollection(body string) (*DataCollection, error) {
	var v dataCollectionJSON
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, err
	}
	return &DataCollection{attributes: v.HasAttribute, actions: v.PerformsAction}, nil
}
