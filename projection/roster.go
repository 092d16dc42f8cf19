package projection

import (
	"cmp"
	"livechat/domain"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Roster is the set of participants currently present, sorted by display name.
// It is replaced as a whole on every presence snapshot.
type Roster struct {
	collator     *collate.Collator
	Participants []domain.Participant
}

// NewRoster sorts names with the collation rules of tag.
// language.Und gives the root collation.
func NewRoster(tag language.Tag) *Roster {
	return &Roster{collator: collate.New(tag, collate.IgnoreCase)}
}

// Replace installs a new roster. Equal names keep a stable order by record key.
func (r *Roster) Replace(participants []domain.Participant) []domain.Participant {
	sorted := slices.Clone(participants)
	slices.SortStableFunc(sorted, func(a, b domain.Participant) int {
		if c := r.collator.CompareString(a.DisplayName, b.DisplayName); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	r.Participants = sorted
	return r.Snapshot()
}

func (r *Roster) Snapshot() []domain.Participant {
	return slices.Clone(r.Participants)
}
