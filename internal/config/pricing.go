package config

// ModelPricing holds USD prices per million tokens.
type ModelPricing struct {
	InputPerMTok        float64
	OutputPerMTok       float64
	CacheWrite5mPerMTok float64
	CacheWrite1hPerMTok float64
	CacheReadPerMTok    float64
}

// defaultPricing covers the models the client ships aliases for.
// Cache writes bill at 1.25x (5m) / 2x (1h) of input; reads at 0.1x.
var defaultPricing = map[string]ModelPricing{
	"claude-sonnet-4-20250514": {
		InputPerMTok:        3.00,
		OutputPerMTok:       15.00,
		CacheWrite5mPerMTok: 3.75,
		CacheWrite1hPerMTok: 6.00,
		CacheReadPerMTok:    0.30,
	},
	"claude-opus-4-20250514": {
		InputPerMTok:        15.00,
		OutputPerMTok:       75.00,
		CacheWrite5mPerMTok: 18.75,
		CacheWrite1hPerMTok: 30.00,
		CacheReadPerMTok:    1.50,
	},
}

// LookupPricing returns pricing for a model ID.
func LookupPricing(model string) (ModelPricing, bool) {
	p, ok := defaultPricing[model]
	return p, ok
}

// EstimateCacheSpend returns the estimated USD cost of the recorded cache
// activity: one write of creationTokens at the duration's write rate plus
// the most recent read of hitTokens.
func EstimateCacheSpend(model string, durationMinutes, creationTokens, hitTokens int) (float64, bool) {
	p, ok := LookupPricing(model)
	if !ok {
		return 0, false
	}
	writeRate := p.CacheWrite5mPerMTok
	if durationMinutes == 60 {
		writeRate = p.CacheWrite1hPerMTok
	}
	spend := float64(creationTokens)/1_000_000*writeRate +
		float64(hitTokens)/1_000_000*p.CacheReadPerMTok
	return spend, true
}
