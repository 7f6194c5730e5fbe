package gate

// AgreementBonus rewards each additional source agreeing on a value.
const AgreementBonus = 0.2

// Ballot is one source's value for a field.
type Ballot struct {
	URL   string
	Value string
	Trust int
}

// BallotGroup is the set of ballots sharing one normalized value.
type BallotGroup struct {
	Ballots []Ballot
	Score   float64
}

// Elect groups ballots by normalized value and returns the winner, scored
// sum(trust) * (1 + 0.2*(n-1)). Equal scores go to the group holding the
// higher-trust ballot, then to the group seen first. Blank values are
// ignored; nil means nothing was cast.
func Elect(ballots []Ballot) *BallotGroup {
	groups := make(map[string]*BallotGroup)
	var order []string
	for _, b := range ballots {
		key := NormalizeText(b.Value)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &BallotGroup{}
			groups[key] = g
			order = append(order, key)
		}
		g.Ballots = append(g.Ballots, b)
	}

	var best *BallotGroup
	for _, key := range order {
		g := groups[key]
		sum := 0
		for _, b := range g.Ballots {
			sum += b.Trust
		}
		g.Score = float64(sum) * (1 + AgreementBonus*float64(len(g.Ballots)-1))
		switch {
		case best == nil, g.Score > best.Score:
			best = g
		case g.Score == best.Score && g.lead().Trust > best.lead().Trust:
			best = g
		}
	}
	return best
}

// lead is the first ballot with the group's highest trust.
func (g *BallotGroup) lead() Ballot {
	best := g.Ballots[0]
	for _, b := range g.Ballots[1:] {
		if b.Trust > best.Trust {
			best = b
		}
	}
	return best
}

// Representative is the highest-trust ballot's original value.
func (g *BallotGroup) Representative() string { return g.lead().Value }

// LeadURL is the source of the representative value.
func (g *BallotGroup) LeadURL() string { return g.lead().URL }

// URLs lists the group's sources in ballot order.
func (g *BallotGroup) URLs() []string {
	out := make([]string, len(g.Ballots))
	for i, b := range g.Ballots {
		out[i] = b.URL
	}
	return out
}
