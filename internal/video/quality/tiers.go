// Package quality implements the AIMD Quality Controller from spec.md
// §4.6: a five-tier bitrate/resolution/fps ladder that reacts to
// buffer-health telemetry arriving roughly once per second.
package quality

// Tier is one (bitrate, pixel budget, fps) rung of the ladder, ordered
// lowest to highest.
type Tier struct {
	Name        string
	BitrateBps  int
	PixelBudget int
	FPS         int
}

// Tiers is the fixed five-tier table spec.md §4.6 names: Emergency through
// Max. Index order is significant — it is the AIMD state machine's unit of
// movement.
var Tiers = []Tier{
	{Name: "Emergency", BitrateBps: 1_000_000, PixelBudget: 1024 * 768, FPS: 15},
	{Name: "Low", BitrateBps: 2_000_000, PixelBudget: 1280 * 720, FPS: 24},
	{Name: "Medium", BitrateBps: 4_000_000, PixelBudget: 1920 * 1080, FPS: 30},
	{Name: "High", BitrateBps: 6_000_000, PixelBudget: 2560 * 1440, FPS: 30},
	{Name: "Max", BitrateBps: 8_000_000, PixelBudget: 3840 * 2160, FPS: 30},
}

// DefaultTierIndex is the controller's starting tier, per spec.md §4.6:
// "Default start tier is High (index 3)."
const DefaultTierIndex = 3
