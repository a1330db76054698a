package tokens

// Characters per token for the two script classes. Hangul packs far more
// meaning per character than Latin text, so it is counted much denser.
const (
	denseCharsPerToken = 1.5
	otherCharsPerToken = 4.0
)

// Estimate approximates the token count of text without a vendor tokenizer.
// Dense-script runes (Hangul syllables and jamo) are weighted at 1.5 runes
// per token and everything else at 4, each class rounded up separately.
// The result is non-decreasing as same-class text grows.
func Estimate(text string) int {
	var dense, other int
	for _, r := range text {
		if isDense(r) {
			dense++
		} else {
			other++
		}
	}
	return ceilDiv(dense*2, 3) + ceilDiv(other, 4)
}

// ceilDiv returns ceil(a/b) for non-negative a and positive b. Dense runes are
// passed doubled over 3 to keep the 1.5 ratio in integer arithmetic.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func isDense(r rune) bool {
	switch {
	case r >= 0xAC00 && r <= 0xD7A3: // Hangul syllables
		return true
	case r >= 0x1100 && r <= 0x11FF: // Hangul jamo
		return true
	case r >= 0x3130 && r <= 0x318F: // compatibility jamo
		return true
	}
	return false
}

// Pricing is a linear per-million-token rate in USD.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// DefaultPricing is used when no pricing is configured.
var DefaultPricing = Pricing{InputPerMillion: 3.00, OutputPerMillion: 15.00}

// Cost returns the estimated USD cost of a call.
func (p Pricing) Cost(input, output int) float64 {
	return float64(input)/1_000_000*p.InputPerMillion + float64(output)/1_000_000*p.OutputPerMillion
}
