// pkg/core/vehicle.go
package core

// RecordingMetadata is the optional cosmetic sidecar of a recording.
type RecordingMetadata struct {
	Vehicle *VehicleMetadata `json:"vehicle,omitempty"`
	Driver  *PedMetadata     `json:"driver,omitempty"`
}

// RGB is a custom paint or neon colour.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// VehicleMetadata is a snapshot of a vehicle's cosmetic configuration.
// Missing map keys and nil pointers mean "leave unmodified".
type VehicleMetadata struct {
	Mods          map[int]int  `json:"mods,omitempty"`
	ModToggles    map[int]bool `json:"modToggles,omitempty"`
	Extras        map[int]bool `json:"extras,omitempty"` // extra id -> turned on
	ModVariations map[int]bool `json:"modVariations,omitempty"`

	Livery     *int `json:"livery,omitempty"`
	RoofLivery *int `json:"roofLivery,omitempty"`

	PrimaryColor     int  `json:"primaryColor"`
	SecondaryColor   int  `json:"secondaryColor"`
	PearlescentColor int  `json:"pearlescentColor"`
	WheelColor       int  `json:"wheelColor"`
	DashboardColor   *int `json:"dashboardColor,omitempty"`
	InteriorColor    *int `json:"interiorColor,omitempty"`

	CustomPrimaryColor   *RGB `json:"customPrimaryColor,omitempty"`
	CustomSecondaryColor *RGB `json:"customSecondaryColor,omitempty"`

	NeonEnabled [4]bool `json:"neonEnabled"`
	NeonColor   RGB     `json:"neonColor"`

	WindowTint int    `json:"windowTint"`
	WheelType  int    `json:"wheelType"`
	PlateText  string `json:"plateText"`
	PlateStyle int    `json:"plateStyle"`
}

// PedMetadata is a snapshot of a driver's model and clothing.
type PedMetadata struct {
	Model      uint32         `json:"model"`
	Components []PedComponent `json:"components,omitempty"`
	Props      []PedProp      `json:"props,omitempty"`
}

// PedComponent is one clothing component slot.
type PedComponent struct {
	ID       int `json:"id"`
	Drawable int `json:"drawable"`
	Texture  int `json:"texture"`
	Palette  int `json:"palette"`
}

// PedProp is one prop slot. Drawable < 0 means no prop.
type PedProp struct {
	ID       int `json:"id"`
	Drawable int `json:"drawable"`
	Texture  int `json:"texture"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
