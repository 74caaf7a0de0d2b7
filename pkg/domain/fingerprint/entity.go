// Package fingerprint generates randomized, internally-consistent client
// identity profiles so each scan presents as ordinary traffic.
package fingerprint

// DeviceClass classifies the simulated client hardware.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
)

// Viewport is a browser viewport size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Fingerprint is a fully-generated client identity profile. It is an
// immutable value object: generated fresh per request, never pooled or
// reused by identity. Duplicates by chance are acceptable.
type Fingerprint struct {
	UserAgent string      `json:"user_agent"`
	Viewport  Viewport    `json:"viewport"`
	Timezone  string      `json:"timezone"`
	Language  string      `json:"language"`
	Platform  string      `json:"platform"`
	Device    DeviceClass `json:"device"`
}

// IsMobile reports whether the profile presents as a handheld client.
func (f Fingerprint) IsMobile() bool {
	return f.Device == DeviceMobile
}
