package protocol

import "testing"

func TestDataCollection_ToPredicates(t *testing.T) {
	d := NewDataCollection()
	if got := d.ToPredicates(); got != "" {
		t.Fatalf("empty: got %q", got)
	}
	d.AddAction("a1", "action", "par1", "par2")
	d.AddAttribute("target", "attName", "attValue")
	d.AddAction("a2", "action", "par1", "par4")
	want := "performs_action (a1, action, par1, par2)\n" +
		"performs_action (a2, action, par1, par4)\n" +
		"has_attribute (target, attName, attValue)\n"
	if got := d.ToPredicates(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	d.Clear()
	if got := d.ToPredicates(); got != "" {
		t.Fatalf("after clear: got %q", got)
	}
}

func TestDataCollection_ToJSON(t *testing.T) {
	d := NewDataCollection()
	if got, want := d.ToJSON(), `{"has_attribute":[],"performs_action":[]}`; got != want {
		t.Fatalf("empty: got %s want %s", got, want)
	}
	d.AddAttribute("target", "attName", "attValue")
	d.AddAction("a1", "action", "par1", "par2")
	d.AddAttribute("t2", "a2", "v2")
	want := `{"has_attribute":[["target","attName","attValue"],["t2","a2","v2"]],"performs_action":[["a1","action","par1","par2"]]}`
	if got := d.ToJSON(); got != want {
		t.Fatalf("got %s want %s", got, want)
	}

	back, err := ParseDataCollection(d.ToJSON())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v, ok := back.Attribute("t2", "a2"); !ok || v != "v2" {
		t.Fatalf("Attribute(t2,a2)=%q,%v", v, ok)
	}
}

func TestDataCollection_AddFrom(t *testing.T) {
	src := NewDataCollection()
	src.AddAttribute("s", "k", "1")
	dst := NewDataCollection()
	dst.AddAttribute("d", "k", "0")
	dst.AddFrom(src)
	src.Clear()
	if got := len(dst.Attributes()); got != 2 {
		t.Fatalf("len=%d want 2", got)
	}
	if v, _ := dst.Attribute("s", "k"); v != "1" {
		t.Fatalf("copied attribute changed after source clear: %q", v)
	}
}

func TestDecodeCommand(t *testing.T) {
	c, err := DecodeCommand(`{"ActionName":"Forward","Arg1":"x"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.ActionName != "forward" || c.Arg1 != "x" || c.Arg2 != "" {
		t.Fatalf("unexpected command %+v", c)
	}

	bad := []string{
		``,
		`not json`,
		`{}`,
		`{"ActionName":""}`,
		`{"ActionName":"tell","Arg1":5}`,
		`[]`,
	}
	for _, body := range bad {
		if _, err := DecodeCommand(body); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
}

func TestSettingsHelpers(t *testing.T) {
	m := WelcomeMessage(12)
	if m.Type != TypeSettings || m.Format != FormatSettings {
		t.Fatalf("welcome type/format: %v/%v", m.Type, m.Format)
	}
	if got := ParseSettings(m.Body)[KeyYourID]; got != "12" {
		t.Fatalf("your_id=%q", got)
	}
	if got := EncodeSettings(map[string]string{"b": "2", "a": "1"}); got != "a=1\nb=2" {
		t.Fatalf("EncodeSettings=%q", got)
	}
	caps, err := ParseCapabilities(CapabilitiesMessage([]string{"left", "right"}).Body)
	if err != nil || len(caps) != 2 || caps[0] != "left" {
		t.Fatalf("capabilities: %v %v", caps, err)
	}
	if got := CapabilitiesMessage(nil).Body; got != "[]" {
		t.Fatalf("empty capabilities body %q", got)
	}
}
