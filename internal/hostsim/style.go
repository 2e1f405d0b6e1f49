package hostsim

import "github.com/RecM/recm/pkg/core"

// VehicleLook is the cosmetic state of a simulated vehicle.
type VehicleLook struct {
	PlateText       string
	PlateStyle      int
	WindowTint      int
	WheelType       int
	Primary         int
	Secondary       int
	Pearlescent     int
	WheelColour     int
	Dashboard       int
	Interior        int
	CustomPrimary   *core.RGB
	CustomSecondary *core.RGB
	Livery          int
	RoofLivery      int
	Neon            [4]bool
	NeonColour      core.RGB
	ModKit          int

	// Extras holds the extras the model has, mapped to whether they are on.
	Extras map[int]bool
	// ModCounts is how many options each mod slot offers.
	ModCounts  map[int]int
	Mods       map[int]int
	Variations map[int]bool
	Toggles    map[int]bool
}

func newVehicleLook() VehicleLook {
	return VehicleLook{
		PlateText:  "RECM",
		Dashboard:  -1,
		Interior:   -1,
		Livery:     -1,
		RoofLivery: -1,
		ModKit:     -1,
		Extras:     make(map[int]bool),
		ModCounts:  make(map[int]int),
		Mods:       make(map[int]int),
		Variations: make(map[int]bool),
		Toggles:    make(map[int]bool),
	}
}

// PedLook is the clothing of a simulated ped.
type PedLook struct {
	Components map[int][3]int // drawable, texture, palette
	Props      map[int][2]int // drawable, texture; drawable -1 is none
}

func newPedLook() PedLook {
	return PedLook{Components: make(map[int][3]int), Props: make(map[int][2]int)}
}

// Style edits a vehicle's look in place.
func (h *Host) Style(v core.Handle, fn func(*VehicleLook)) {
	h.with(v, func(e *Entity) { fn(&e.Look) })
}

// Dress edits a ped's clothing in place.
func (h *Host) Dress(p core.Handle, fn func(*PedLook)) {
	h.with(p, func(e *Entity) { fn(&e.Clothes) })
}

func (h *Host) look(v core.Handle) VehicleLook {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.entities[v]; ok {
		return e.Look
	}
	return newVehicleLook()
}

func (h *Host) PlateText(v core.Handle) string { return h.look(v).PlateText }
func (h *Host) SetPlateText(v core.Handle, text string) {
	h.Style(v, func(l *VehicleLook) { l.PlateText = text })
}
func (h *Host) PlateStyle(v core.Handle) int { return h.look(v).PlateStyle }
func (h *Host) SetPlateStyle(v core.Handle, style int) {
	h.Style(v, func(l *VehicleLook) { l.PlateStyle = style })
}
func (h *Host) WindowTint(v core.Handle) int { return h.look(v).WindowTint }
func (h *Host) SetWindowTint(v core.Handle, tint int) {
	h.Style(v, func(l *VehicleLook) { l.WindowTint = tint })
}
func (h *Host) WheelType(v core.Handle) int { return h.look(v).WheelType }
func (h *Host) SetWheelType(v core.Handle, wheelType int) {
	h.Style(v, func(l *VehicleLook) { l.WheelType = wheelType })
}

func (h *Host) Colours(v core.Handle) (primary, secondary int) {
	l := h.look(v)
	return l.Primary, l.Secondary
}
func (h *Host) SetColours(v core.Handle, primary, secondary int) {
	h.Style(v, func(l *VehicleLook) { l.Primary, l.Secondary = primary, secondary })
}
func (h *Host) ExtraColours(v core.Handle) (pearlescent, wheel int) {
	l := h.look(v)
	return l.Pearlescent, l.WheelColour
}
func (h *Host) SetExtraColours(v core.Handle, pearlescent, wheel int) {
	h.Style(v, func(l *VehicleLook) { l.Pearlescent, l.WheelColour = pearlescent, wheel })
}
func (h *Host) DashboardColour(v core.Handle) int { return h.look(v).Dashboard }
func (h *Host) SetDashboardColour(v core.Handle, colour int) {
	h.Style(v, func(l *VehicleLook) { l.Dashboard = colour })
}
func (h *Host) InteriorColour(v core.Handle) int { return h.look(v).Interior }
func (h *Host) SetInteriorColour(v core.Handle, colour int) {
	h.Style(v, func(l *VehicleLook) { l.Interior = colour })
}

func (h *Host) CustomPrimaryColour(v core.Handle) (core.RGB, bool) {
	if c := h.look(v).CustomPrimary; c != nil {
		return *c, true
	}
	return core.RGB{}, false
}
func (h *Host) SetCustomPrimaryColour(v core.Handle, c core.RGB) {
	h.Style(v, func(l *VehicleLook) { l.CustomPrimary = &c })
}
func (h *Host) ClearCustomPrimaryColour(v core.Handle) {
	h.Style(v, func(l *VehicleLook) { l.CustomPrimary = nil })
}
func (h *Host) CustomSecondaryColour(v core.Handle) (core.RGB, bool) {
	if c := h.look(v).CustomSecondary; c != nil {
		return *c, true
	}
	return core.RGB{}, false
}
func (h *Host) SetCustomSecondaryColour(v core.Handle, c core.RGB) {
	h.Style(v, func(l *VehicleLook) { l.CustomSecondary = &c })
}
func (h *Host) ClearCustomSecondaryColour(v core.Handle) {
	h.Style(v, func(l *VehicleLook) { l.CustomSecondary = nil })
}

func (h *Host) Livery(v core.Handle) int { return h.look(v).Livery }
func (h *Host) SetLivery(v core.Handle, livery int) {
	h.Style(v, func(l *VehicleLook) { l.Livery = livery })
}
func (h *Host) RoofLivery(v core.Handle) int { return h.look(v).RoofLivery }
func (h *Host) SetRoofLivery(v core.Handle, livery int) {
	h.Style(v, func(l *VehicleLook) { l.RoofLivery = livery })
}

func (h *Host) NeonEnabled(v core.Handle, side int) bool { return h.look(v).Neon[side] }
func (h *Host) SetNeonEnabled(v core.Handle, side int, on bool) {
	h.Style(v, func(l *VehicleLook) { l.Neon[side] = on })
}
func (h *Host) NeonColour(v core.Handle) core.RGB { return h.look(v).NeonColour }
func (h *Host) SetNeonColour(v core.Handle, c core.RGB) {
	h.Style(v, func(l *VehicleLook) { l.NeonColour = c })
}

func (h *Host) ExtraExists(v core.Handle, id int) bool {
	_, ok := h.look(v).Extras[id]
	return ok
}
func (h *Host) ExtraOn(v core.Handle, id int) bool { return h.look(v).Extras[id] }
func (h *Host) SetExtraDisabled(v core.Handle, id int, disabled bool) {
	h.Style(v, func(l *VehicleLook) {
		if _, ok := l.Extras[id]; ok {
			l.Extras[id] = !disabled
		}
	})
}

func (h *Host) SetModKit(v core.Handle, kit int) {
	h.Style(v, func(l *VehicleLook) { l.ModKit = kit })
}
func (h *Host) ModCount(v core.Handle, modType int) int { return h.look(v).ModCounts[modType] }
func (h *Host) Mod(v core.Handle, modType int) int {
	if m, ok := h.look(v).Mods[modType]; ok {
		return m
	}
	return -1
}
func (h *Host) ModVariation(v core.Handle, modType int) bool { return h.look(v).Variations[modType] }
func (h *Host) SetMod(v core.Handle, modType, index int, variation bool) {
	h.Style(v, func(l *VehicleLook) {
		l.Mods[modType] = index
		l.Variations[modType] = variation
	})
}
func (h *Host) RemoveMod(v core.Handle, modType int) {
	h.Style(v, func(l *VehicleLook) {
		delete(l.Mods, modType)
		delete(l.Variations, modType)
	})
}
func (h *Host) ToggleModOn(v core.Handle, modType int) bool { return h.look(v).Toggles[modType] }
func (h *Host) ToggleMod(v core.Handle, modType int, on bool) {
	h.Style(v, func(l *VehicleLook) { l.Toggles[modType] = on })
}

func (h *Host) PedModel(p core.Handle) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.entities[p]; ok {
		return e.Model
	}
	return 0
}

func (h *Host) clothes(p core.Handle) PedLook {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.entities[p]; ok {
		return e.Clothes
	}
	return newPedLook()
}

func (h *Host) Component(p core.Handle, id int) (drawable, texture, palette int) {
	c := h.clothes(p).Components[id]
	return c[0], c[1], c[2]
}
func (h *Host) SetComponent(p core.Handle, id, drawable, texture, palette int) {
	h.Dress(p, func(l *PedLook) { l.Components[id] = [3]int{drawable, texture, palette} })
}
func (h *Host) Prop(p core.Handle, id int) (drawable, texture int) {
	pr, ok := h.clothes(p).Props[id]
	if !ok {
		return -1, -1
	}
	return pr[0], pr[1]
}
func (h *Host) SetProp(p core.Handle, id, drawable, texture int) {
	h.Dress(p, func(l *PedLook) { l.Props[id] = [2]int{drawable, texture} })
}
func (h *Host) ClearProp(p core.Handle, id int) {
	h.Dress(p, func(l *PedLook) { delete(l.Props, id) })
}
