package birdnet

// Result pairs one species label with its sigmoid-adjusted confidence.
// The species string keeps the raw "Scientific_Common" label format the
// model was trained with.
type Result struct {
	Species    string
	Confidence float32
}
