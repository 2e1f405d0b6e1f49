package capture

import "github.com/RecM/recm/pkg/core"

// Appearance ranges read and written by CaptureVehicle and ApplyVehicle.
const (
	ModTypes      = 50
	ExtraIDs      = 21
	ToggleFirst   = 17
	ToggleLast    = 22
	PedComponents = 12
	PedProps      = 8
	NeonSides     = 4
)

// VehicleStyle reads and writes the cosmetic state of a vehicle.
type VehicleStyle interface {
	PlateText(v core.Handle) string
	SetPlateText(v core.Handle, text string)
	PlateStyle(v core.Handle) int
	SetPlateStyle(v core.Handle, style int)
	WindowTint(v core.Handle) int
	SetWindowTint(v core.Handle, tint int)
	WheelType(v core.Handle) int
	SetWheelType(v core.Handle, wheelType int)

	Colours(v core.Handle) (primary, secondary int)
	SetColours(v core.Handle, primary, secondary int)
	ExtraColours(v core.Handle) (pearlescent, wheel int)
	SetExtraColours(v core.Handle, pearlescent, wheel int)
	DashboardColour(v core.Handle) int
	SetDashboardColour(v core.Handle, colour int)
	InteriorColour(v core.Handle) int
	SetInteriorColour(v core.Handle, colour int)

	// CustomPrimaryColour reports ok=false when no custom colour is set.
	CustomPrimaryColour(v core.Handle) (c core.RGB, ok bool)
	SetCustomPrimaryColour(v core.Handle, c core.RGB)
	ClearCustomPrimaryColour(v core.Handle)
	CustomSecondaryColour(v core.Handle) (c core.RGB, ok bool)
	SetCustomSecondaryColour(v core.Handle, c core.RGB)
	ClearCustomSecondaryColour(v core.Handle)

	Livery(v core.Handle) int
	SetLivery(v core.Handle, livery int)
	RoofLivery(v core.Handle) int
	SetRoofLivery(v core.Handle, livery int)

	NeonEnabled(v core.Handle, side int) bool
	SetNeonEnabled(v core.Handle, side int, on bool)
	NeonColour(v core.Handle) core.RGB
	SetNeonColour(v core.Handle, c core.RGB)

	ExtraExists(v core.Handle, id int) bool
	ExtraOn(v core.Handle, id int) bool
	// SetExtraDisabled follows the game's inverted extra toggle.
	SetExtraDisabled(v core.Handle, id int, disabled bool)

	SetModKit(v core.Handle, kit int)
	ModCount(v core.Handle, modType int) int
	Mod(v core.Handle, modType int) int
	ModVariation(v core.Handle, modType int) bool
	SetMod(v core.Handle, modType, index int, variation bool)
	RemoveMod(v core.Handle, modType int)
	ToggleModOn(v core.Handle, modType int) bool
	ToggleMod(v core.Handle, modType int, on bool)
}

// PedStyle reads and writes the clothing of a ped.
type PedStyle interface {
	PedModel(p core.Handle) uint32
	Component(p core.Handle, id int) (drawable, texture, palette int)
	SetComponent(p core.Handle, id, drawable, texture, palette int)
	Prop(p core.Handle, id int) (drawable, texture int)
	SetProp(p core.Handle, id, drawable, texture int)
	ClearProp(p core.Handle, id int)
}

// CaptureVehicle snapshots the cosmetic state of v.
func CaptureVehicle(s VehicleStyle, v core.Handle) *core.VehicleMetadata {
	m := &core.VehicleMetadata{
		PlateText:      s.PlateText(v),
		PlateStyle:     s.PlateStyle(v),
		WindowTint:     s.WindowTint(v),
		WheelType:      s.WheelType(v),
		DashboardColor: core.IntPtr(s.DashboardColour(v)),
		InteriorColor:  core.IntPtr(s.InteriorColour(v)),
		Livery:         core.IntPtr(s.Livery(v)),
		RoofLivery:     core.IntPtr(s.RoofLivery(v)),
		NeonColor:      s.NeonColour(v),
		Mods:           make(map[int]int),
		ModVariations:  make(map[int]bool),
		ModToggles:     make(map[int]bool),
		Extras:         make(map[int]bool),
	}
	m.PrimaryColor, m.SecondaryColor = s.Colours(v)
	m.PearlescentColor, m.WheelColor = s.ExtraColours(v)

	if c, ok := s.CustomPrimaryColour(v); ok {
		m.CustomPrimaryColor = &c
	}
	if c, ok := s.CustomSecondaryColour(v); ok {
		m.CustomSecondaryColor = &c
	}

	for side := 0; side < NeonSides; side++ {
		m.NeonEnabled[side] = s.NeonEnabled(v, side)
	}

	for id := 0; id < ExtraIDs; id++ {
		if s.ExtraExists(v, id) {
			m.Extras[id] = s.ExtraOn(v, id)
		}
	}

	// Mod indices are meaningless until a kit is selected.
	s.SetModKit(v, 0)
	for t := 0; t < ModTypes; t++ {
		mod := s.Mod(v, t)
		if s.ModCount(v, t) <= 0 && mod == -1 {
			continue
		}
		m.Mods[t] = mod
		if s.ModVariation(v, t) {
			m.ModVariations[t] = true
		}
	}
	for t := ToggleFirst; t <= ToggleLast; t++ {
		m.ModToggles[t] = s.ToggleModOn(v, t)
	}
	return m
}

// ApplyVehicle writes m onto v. Optional fields that were never captured
// leave the vehicle's current value alone.
func ApplyVehicle(s VehicleStyle, v core.Handle, m *core.VehicleMetadata) {
	if m == nil {
		return
	}
	s.SetModKit(v, 0)

	if m.PlateText != "" {
		s.SetPlateText(v, m.PlateText)
	}
	s.SetPlateStyle(v, m.PlateStyle)
	s.SetWheelType(v, m.WheelType)
	s.SetWindowTint(v, m.WindowTint)

	s.SetColours(v, m.PrimaryColor, m.SecondaryColor)
	s.SetExtraColours(v, m.PearlescentColor, m.WheelColor)
	if m.DashboardColor != nil && *m.DashboardColor != -1 {
		s.SetDashboardColour(v, *m.DashboardColor)
	}
	if m.InteriorColor != nil && *m.InteriorColor != -1 {
		s.SetInteriorColour(v, *m.InteriorColor)
	}

	if m.CustomPrimaryColor != nil {
		s.SetCustomPrimaryColour(v, *m.CustomPrimaryColor)
	} else {
		s.ClearCustomPrimaryColour(v)
	}
	if m.CustomSecondaryColor != nil {
		s.SetCustomSecondaryColour(v, *m.CustomSecondaryColor)
	} else {
		s.ClearCustomSecondaryColour(v)
	}

	if m.Livery != nil && *m.Livery >= 0 {
		s.SetLivery(v, *m.Livery)
	}
	if m.RoofLivery != nil && *m.RoofLivery >= 0 {
		s.SetRoofLivery(v, *m.RoofLivery)
	}

	s.SetNeonColour(v, m.NeonColor)
	for side := 0; side < NeonSides; side++ {
		s.SetNeonEnabled(v, side, m.NeonEnabled[side])
	}

	for id, on := range m.Extras {
		s.SetExtraDisabled(v, id, !on)
	}

	for t, mod := range m.Mods {
		if mod >= 0 {
			s.SetMod(v, t, mod, m.ModVariations[t])
		} else {
			s.RemoveMod(v, t)
		}
	}
	for t, on := range m.ModToggles {
		s.ToggleMod(v, t, on)
	}
}

// CapturePed snapshots the model and clothing of p.
func CapturePed(s PedStyle, p core.Handle) *core.PedMetadata {
	m := &core.PedMetadata{
		Model:      s.PedModel(p),
		Components: make([]core.PedComponent, 0, PedComponents),
		Props:      make([]core.PedProp, 0, PedProps),
	}
	for id := 0; id < PedComponents; id++ {
		d, tex, pal := s.Component(p, id)
		m.Components = append(m.Components, core.PedComponent{ID: id, Drawable: d, Texture: tex, Palette: pal})
	}
	for id := 0; id < PedProps; id++ {
		d, tex := s.Prop(p, id)
		if d < 0 {
			tex = 0
		}
		m.Props = append(m.Props, core.PedProp{ID: id, Drawable: d, Texture: tex})
	}
	return m
}

// ApplyPed dresses p according to m. The model itself is chosen at spawn time.
func ApplyPed(s PedStyle, p core.Handle, m *core.PedMetadata) {
	if m == nil {
		return
	}
	for _, c := range m.Components {
		s.SetComponent(p, c.ID, c.Drawable, c.Texture, c.Palette)
	}
	for _, pr := range m.Props {
		if pr.Drawable < 0 {
			s.ClearProp(p, pr.ID)
		} else {
			s.SetProp(p, pr.ID, pr.Drawable, pr.Texture)
		}
	}
}

// CaptureMetadata snapshots a vehicle and, when driver is non-zero, its driver.
func CaptureMetadata(vs VehicleStyle, ps PedStyle, v, driver core.Handle) *core.RecordingMetadata {
	m := &core.RecordingMetadata{Vehicle: CaptureVehicle(vs, v)}
	if driver != 0 && ps != nil {
		m.Driver = CapturePed(ps, driver)
	}
	return m
}
