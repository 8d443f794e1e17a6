package basic

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"terrasim.io/internal/sim/world"
)

const testMap = `{
  "name": "meadow",
  "tile_defs": [
    {"type": "grass", "speedcap": 2, "lighting_reduction": 0},
    {"type": "rock", "speedcap": 0, "lighting_reduction": 1},
    {"type": "water", "speedcap": 1, "lighting_reduction": 0}
  ],
  "tiles": [
    ["grass", "grass", "grass", "water"],
    ["grass", "grass", "grass", "grass"],
    ["grass", "grass", "rock", "grass"],
    ["grass", "grass", "grass", "grass"]
  ]
}`

func loadWorld(t *testing.T, mapJSON string) (*Provider, *world.World) {
	t.Helper()
	s := world.DefaultSettings()
	s.WeatherEnabled = false
	s.DayNightEnabled = false
	p := New(Options{Settings: &s})
	w, err := p.LoadMap(strings.NewReader(mapJSON))
	if err != nil {
		t.Fatalf("LoadMap: %v", err)
	}
	return p, w
}

func addAgent(t *testing.T, w *world.World, id int) *world.UserAgent {
	t.Helper()
	a, err := w.AddAgent(id)
	if err != nil {
		t.Fatalf("AddAgent(%d): %v", id, err)
	}
	return a
}

func tick(t *testing.T, w *world.World, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := w.Update(); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
}

func accumulatorOf(t *testing.T, a *world.UserAgent) *Accumulator {
	t.Helper()
	for _, s := range a.Sensors() {
		if acc, ok := s.(*Accumulator); ok {
			return acc
		}
	}
	t.Fatalf("%s has no accumulator", a.Name())
	return nil
}

func TestLoadMap_BindsOnce(t *testing.T) {
	p, w := loadWorld(t, testMap)
	if w.Name() != "meadow" || p.World() != w {
		t.Fatalf("world name=%q", w.Name())
	}
	if w.Map().SizeX() != 4 || w.Map().SizeY() != 4 {
		t.Fatalf("size=%dx%d", w.Map().SizeX(), w.Map().SizeY())
	}
	if _, err := p.LoadMap(strings.NewReader(testMap)); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("second LoadMap: err=%v", err)
	}
	if w.ObjectByName("water_4") == nil {
		t.Fatalf("tile water_4 not registered")
	}
}

func TestLoadMap_Errors(t *testing.T) {
	cases := map[string]string{
		"bad json":     `{"name":`,
		"no tiles":     `{"name":"x","tile_defs":[{"type":"grass","speedcap":1}],"tiles":[]}`,
		"unknown tile": `{"name":"x","tile_defs":[{"type":"grass","speedcap":1}],"tiles":[["lava"]]}`,
		"no defs":      `{"name":"x","tiles":[["grass"]]}`,
		"bad topology": `{"name":"x","topology":"cube","tile_defs":[{"type":"grass","speedcap":1}],"tiles":[["grass"]]}`,
		"missing file": `{"name":"x","tiles_file":"does-not-exist.json","tiles":[["grass"]]}`,
	}
	for name, m := range cases {
		if _, err := New(Options{}).LoadMap(strings.NewReader(m)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestGenerateAgent_Equipment(t *testing.T) {
	_, w := loadWorld(t, testMap)
	a := addAgent(t, w, 4)
	if a.Name() != "agent_4" {
		t.Fatalf("name=%q", a.Name())
	}
	if x, y := a.Position(); x != SpawnX || y != SpawnY {
		t.Fatalf("spawn=(%d,%d)", x, y)
	}
	want := []string{
		"gun_stats", "shoot", "reload",
		"motor_stats", "left", "right", "forward", "backward",
		"watertank_stats", "water", "refill",
	}
	got := a.PossibleActions()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("actions=%v", got)
	}
	if len(a.Sensors()) != 6 {
		t.Fatalf("sensors=%d want 6", len(a.Sensors()))
	}
}

func TestWheels_ForwardAfterDelay(t *testing.T) {
	_, w := loadWorld(t, testMap)
	a := addAgent(t, w, 1)

	w.EnqueueCommand(1, "forward", "", "")
	tick(t, w, 1)
	if x, y := a.Position(); x != 1 || y != 1 {
		t.Fatalf("moved too early to (%d,%d)", x, y)
	}
	dc, _ := w.AgentData(1)
	if acts := dc.Actions(); len(acts) != 1 || acts[0][1] != "forward" {
		t.Fatalf("in-progress action not reported: %v", acts)
	}

	tick(t, w, 1)
	if x, y := a.Position(); x != 0 || y != 1 {
		t.Fatalf("position=(%d,%d) want (0,1)", x, y)
	}
	dc, _ = w.AgentData(1)
	if v, _ := dc.Attribute("agent_1", "position_x"); v != "0" {
		t.Fatalf("position_x=%q", v)
	}
	if len(dc.Actions()) != 0 {
		t.Fatalf("finished action still reported: %v", dc.Actions())
	}
}

func TestWheels_TurnAndBlockedStep(t *testing.T) {
	_, w := loadWorld(t, testMap)
	a := addAgent(t, w, 1)
	var wh *Wheels
	for _, act := range a.Actuators() {
		if v, ok := act.(*Wheels); ok {
			wh = v
		}
	}

	w.EnqueueCommand(1, "left", "", "")
	tick(t, w, 2)
	if wh.Heading() != 5 {
		t.Fatalf("heading=%d want 5 after left from 0", wh.Heading())
	}
	w.EnqueueCommand(1, "right", "", "")
	tick(t, w, 2)
	w.EnqueueCommand(1, "right", "", "")
	tick(t, w, 2)
	w.EnqueueCommand(1, "right", "", "")
	tick(t, w, 2)
	w.EnqueueCommand(1, "right", "", "")
	tick(t, w, 2)
	if wh.Heading() != 3 {
		t.Fatalf("heading=%d want 3", wh.Heading())
	}

	// heading 3 from odd row 1 points at (2,2), which is rock.
	w.EnqueueCommand(1, "forward", "", "")
	tick(t, w, 2)
	if x, y := a.Position(); x != 1 || y != 1 {
		t.Fatalf("stepped onto impassable tile: (%d,%d)", x, y)
	}

	w.EnqueueCommand(1, "backward", "", "")
	tick(t, w, 2)
	if x, y := a.Position(); x != 0 || y != 1 {
		t.Fatalf("backward position=(%d,%d) want (0,1)", x, y)
	}
	if wh.Heading() != 3 {
		t.Fatalf("backward changed heading to %d", wh.Heading())
	}
}

func TestWheels_NeedsEnergy(t *testing.T) {
	_, w := loadWorld(t, testMap)
	a := addAgent(t, w, 1)
	acc := accumulatorOf(t, a)
	if !acc.Pay(AccumulatorCapacity - 2) {
		t.Fatalf("Pay refused")
	}
	w.EnqueueCommand(1, "forward", "", "")
	tick(t, w, 2)
	if x, y := a.Position(); x != 1 || y != 1 {
		t.Fatalf("moved without energy to (%d,%d)", x, y)
	}
}

func TestPayEnergy_TargetsOwner(t *testing.T) {
	_, w := loadWorld(t, testMap)
	a1 := addAgent(t, w, 1)
	a2 := addAgent(t, w, 2)
	acc1, acc2 := accumulatorOf(t, a1), accumulatorOf(t, a2)

	if !payEnergy(w.Broadcaster(), a1.Agent, 50) {
		t.Fatalf("payment refused")
	}
	if acc1.Level() != 20 || acc2.Level() != AccumulatorCapacity {
		t.Fatalf("levels=%d/%d want 20/%d", acc1.Level(), acc2.Level(), AccumulatorCapacity)
	}
	if payEnergy(w.Broadcaster(), a1.Agent, 30) {
		t.Fatalf("overdraft accepted")
	}
	if acc1.Level() != 20 {
		t.Fatalf("failed payment changed level to %d", acc1.Level())
	}

	// Accumulator recharges by the tile's light level (Full = 5).
	tick(t, w, 1)
	if acc1.Level() != 25 {
		t.Fatalf("level after recharge=%d want 25", acc1.Level())
	}
	dc, _ := w.AgentData(1)
	if v, _ := dc.Attribute("agent_1", "battery_energy_level"); v != "25" {
		t.Fatalf("battery_energy_level=%q", v)
	}

	w.RemoveAgent(2)
	if payEnergy(w.Broadcaster(), a2.Agent, 1) {
		t.Fatalf("removed agent's accumulator still answers")
	}
}

func TestGun_ShootDisarmsAgent(t *testing.T) {
	_, w := loadWorld(t, testMap)
	addAgent(t, w, 1)
	victim := addAgent(t, w, 2)
	noise := 0
	_ = w.Broadcaster().Subscribe(MsgLoudNoise, victim.Agent, func(any) { noise++ })

	w.EnqueueCommand(1, "shoot", "agent_2", "")
	tick(t, w, 1)
	dc, _ := w.AgentData(1)
	if acts := dc.Actions(); len(acts) != 1 || acts[0] != [4]string{"agent_1", "shoot", "agent_2", ""} {
		t.Fatalf("actions=%v", acts)
	}

	tick(t, w, 1)
	if noise != 1 {
		t.Fatalf("loud_noise heard %d times", noise)
	}
	if len(victim.PossibleActions()) != 0 {
		t.Fatalf("victim still armed: %v", victim.PossibleActions())
	}
	dc, _ = w.AgentData(2)
	if v, ok := dc.Attribute("agent_2", "dead"); !ok || v != "true" {
		t.Fatalf("dead=%q,%v", v, ok)
	}
	dc, _ = w.AgentData(1)
	if v, _ := dc.Attribute("agent_1", "bullets_left"); v != "2" {
		t.Fatalf("bullets_left=%q", v)
	}

	// A victim's further commands are simply unhandled.
	w.EnqueueCommand(2, "forward", "", "")
	res, err := w.Update()
	if err != nil || res.Unhandled != 1 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestGun_EmptyMagazineAndReload(t *testing.T) {
	_, w := loadWorld(t, testMap)
	a := addAgent(t, w, 1)
	var g *Gun
	for _, act := range a.Actuators() {
		if v, ok := act.(*Gun); ok {
			g = v
		}
	}
	for i := 0; i < MagazineCapacity+1; i++ {
		w.EnqueueCommand(1, "shoot", "grass_1", "")
		tick(t, w, 2)
	}
	if g.Bullets() != 0 {
		t.Fatalf("bullets=%d want 0", g.Bullets())
	}
	w.EnqueueCommand(1, "reload", "", "")
	tick(t, w, 2)
	if g.Bullets() != 0 {
		t.Fatalf("reload finished early")
	}
	tick(t, w, 1)
	if g.Bullets() != MagazineCapacity {
		t.Fatalf("bullets after reload=%d", g.Bullets())
	}

	w.EnqueueCommand(1, "gun_stats", "", "")
	tick(t, w, 1)
	dc, _ := w.AgentData(1)
	if v, _ := dc.Attribute("agent_1", "bullets_shot"); v != "3" {
		t.Fatalf("bullets_shot=%q", v)
	}
	if v, _ := dc.Attribute("agent_1", "reload_count"); v != "1" {
		t.Fatalf("reload_count=%q", v)
	}
	dc, _ = w.AgentData(1)
	if _, ok := dc.Attribute("agent_1", "bullets_shot"); ok {
		t.Fatalf("stats reported twice")
	}
}

func TestWaterTank_WaterAndRefill(t *testing.T) {
	_, w := loadWorld(t, testMap)
	a := addAgent(t, w, 1)
	var tank *WaterTank
	for _, act := range a.Actuators() {
		if v, ok := act.(*WaterTank); ok {
			tank = v
		}
	}
	tile, _ := world.GroundAt(w.Map(), 1, 2)

	w.EnqueueCommand(1, "water", tile.Name(), "")
	tick(t, w, 2)
	// +2 from watering, -1 from the sunny tile update in the same tick.
	if tile.Humidity() != world.VeryLow {
		t.Fatalf("humidity=%v want VeryLow", tile.Humidity())
	}
	if tank.Level() != initialWater-1 {
		t.Fatalf("level=%d", tank.Level())
	}

	w.EnqueueCommand(1, "water", "grass_16", "")
	tick(t, w, 2)
	if tank.Level() != initialWater-1 {
		t.Fatalf("watered an out-of-reach tile")
	}

	w.EnqueueCommand(1, "refill", tile.Name(), "")
	tick(t, w, 2)
	if tank.Level() != initialWater-1 {
		t.Fatalf("refilled from a non-water tile")
	}

	if err := w.MoveObject(a, 0, 2); err != nil {
		t.Fatalf("MoveObject: %v", err)
	}
	w.EnqueueCommand(1, "refill", "water_4", "")
	tick(t, w, 2)
	if tank.Level() != TankCapacity {
		t.Fatalf("level after refill=%d", tank.Level())
	}
}

func TestCamera_SeesSurroundings(t *testing.T) {
	_, w := loadWorld(t, testMap)
	addAgent(t, w, 1)
	addAgent(t, w, 2)
	tick(t, w, 1)

	dc, _ := w.AgentData(1)
	if v, _ := dc.Attribute("world", "weather"); v != "Sunny" {
		t.Fatalf("weather=%q", v)
	}
	if v, _ := dc.Attribute("agent_2", "type"); v != world.AgentType {
		t.Fatalf("other agent not seen: %q", v)
	}
	if _, ok := dc.Attribute("agent_2", "bullets_left"); ok {
		t.Fatalf("camera leaked another agent's equipment")
	}
	if v, _ := dc.Attribute("rock_11", "lighting"); v != world.AboveAverage.String() {
		t.Fatalf("rock lighting=%q", v)
	}
	if v, _ := dc.Attribute("grass_6", "type"); v != "grass" {
		t.Fatalf("own tile not seen: %q", v)
	}
	if v, _ := dc.Attribute("world", "time"); v != "1" {
		t.Fatalf("clock=%q", v)
	}
	if v, _ := dc.Attribute("world", "pressure"); v != "70" {
		t.Fatalf("pressure=%q", v)
	}
	if v, _ := dc.Attribute("world", "light_intensity"); v != "Full" {
		t.Fatalf("light_intensity=%q", v)
	}
	if _, ok := dc.Attribute("grass_7", "humidity"); !ok {
		t.Fatalf("hygrometer missed a nearby tile")
	}
}

func TestLoadMap_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	tiles := filepath.Join(dir, "tiles.json")
	if err := os.WriteFile(tiles, []byte(`[{"type":"sand","speedcap":1}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := `{"name":"dunes","tiles_file":"missing.json","weather_model_file":"missing.json","tiles":[["sand","sand"],["sand","sand"]]}`

	if _, err := New(Options{TilesFile: tiles}).LoadMap(strings.NewReader(m)); err == nil {
		t.Fatalf("expected the map's weather model reference to fail")
	}
	if _, err := New(Options{TilesFile: tiles, WeatherModelFile: filepath.Join(dir, "nope.json")}).LoadMap(strings.NewReader(m)); err == nil {
		t.Fatalf("expected missing weather override to fail")
	}

	s := world.DefaultSettings()
	s.WeatherEnabled = false
	w, err := New(Options{Settings: &s, TilesFile: tiles}).LoadMap(strings.NewReader(m))
	if err != nil {
		t.Fatalf("LoadMap: %v", err)
	}
	if w.ObjectByName("sand_1") == nil {
		t.Fatalf("tiles from override not used")
	}
}

func TestLoadMap_ShippedMeadow(t *testing.T) {
	dir := filepath.Join("..", "..", "..", "..", "configs", "basic")
	f, err := os.Open(filepath.Join(dir, "map.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	w, err := New(Options{Dir: dir}).LoadMap(f)
	if err != nil {
		t.Fatalf("LoadMap: %v", err)
	}
	if w.Map().SizeX() != 8 || w.Map().SizeY() != 10 {
		t.Fatalf("size=%dx%d", w.Map().SizeX(), w.Map().SizeY())
	}
	tile, ok := world.GroundAt(w.Map(), SpawnX, SpawnY)
	if !ok || !tile.Passable() {
		t.Fatalf("spawn cell not passable")
	}
	a := addAgent(t, w, 0)
	if x, y := a.Position(); x != SpawnX || y != SpawnY {
		t.Fatalf("agent at %d,%d", x, y)
	}
	tick(t, w, 3)
}
