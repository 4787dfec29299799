package domain

// HeroCard is a small rich card (image, title, subtitle) sent as part of a
// carousel message.
type HeroCard struct {
	Title    string
	Subtitle string
	ImageURL string
}
