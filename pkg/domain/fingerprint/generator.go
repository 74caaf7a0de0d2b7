package fingerprint

import (
	"math/rand"
	"strings"
)

// Viewport presets keyed by device class. Viewport and platform are
// derived from the user agent, never randomized independently, so a
// generated profile cannot mix a desktop viewport with a mobile device.
var viewportPresets = map[DeviceClass]Viewport{
	DeviceDesktop: {Width: 1920, Height: 1080},
	DeviceMobile:  {Width: 390, Height: 844},
	DeviceTablet:  {Width: 820, Height: 1180},
}

// Generator produces self-consistent fingerprints from a curated catalog.
// Generation is pure and total over the catalog; there are no failure
// modes and no caching.
type Generator struct {
	catalog Catalog
}

// NewGenerator creates a Generator over the given catalog.
func NewGenerator(catalog Catalog) (*Generator, error) {
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &Generator{catalog: catalog}, nil
}

// NewDefaultGenerator creates a Generator over the built-in catalog.
func NewDefaultGenerator() *Generator {
	g, _ := NewGenerator(DefaultCatalog())
	return g
}

// Generate produces one fingerprint. The user agent is picked uniformly;
// device class, viewport and platform follow from it deterministically;
// timezone and language are picked independently.
func (g *Generator) Generate() Fingerprint {
	ua := g.catalog.UserAgents[rand.Intn(len(g.catalog.UserAgents))]
	device := classifyUserAgent(ua)

	return Fingerprint{
		UserAgent: ua,
		Viewport:  viewportPresets[device],
		Timezone:  g.catalog.Timezones[rand.Intn(len(g.catalog.Timezones))],
		Language:  g.catalog.Languages[rand.Intn(len(g.catalog.Languages))],
		Platform:  platformFor(ua, device),
		Device:    device,
	}
}

// GenerateBatch produces n independently generated fingerprints. There
// is intentionally no uniqueness guarantee: reusing one fingerprint
// across many jobs is itself a detectable pattern, so each job gets a
// fresh draw.
func (g *Generator) GenerateBatch(n int) []Fingerprint {
	if n <= 0 {
		return nil
	}
	out := make([]Fingerprint, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Generate())
	}
	return out
}

// classifyUserAgent derives the device class from the user agent string.
func classifyUserAgent(ua string) DeviceClass {
	switch {
	case strings.Contains(ua, "iPad") || strings.Contains(ua, "Tablet"):
		return DeviceTablet
	case strings.Contains(ua, "Mobile") || strings.Contains(ua, "Android") || strings.Contains(ua, "iPhone"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

// platformFor returns the navigator.platform value consistent with the
// user agent. Falls back to a per-class default for unknown strings.
func platformFor(ua string, device DeviceClass) string {
	switch {
	case strings.Contains(ua, "iPhone"):
		return "iPhone"
	case strings.Contains(ua, "iPad"):
		return "iPad"
	case strings.Contains(ua, "Android"):
		return "Linux armv8l"
	case strings.Contains(ua, "Windows"):
		return "Win32"
	case strings.Contains(ua, "Macintosh"):
		return "MacIntel"
	case strings.Contains(ua, "Linux"):
		return "Linux x86_64"
	}

	switch device {
	case DeviceMobile:
		return "Linux armv8l"
	case DeviceTablet:
		return "iPad"
	default:
		return "Win32"
	}
}
