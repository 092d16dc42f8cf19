package projection

import (
	"livechat/domain"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestRoster_Replace_Sorts_By_Display_Name(t *testing.T) {
	req := require.New(t)
	roster := NewRoster(language.Und)
	at := time.Now()

	// Given participants in arrival order
	participants := []domain.Participant{
		domain.NewParticipant("3", "zoé", at),
		domain.NewParticipant("1", "Émile", at),
		domain.NewParticipant("2", "bob", at),
		domain.NewParticipant("4", "Alice", at),
	}

	// When the roster is replaced
	sorted := roster.Replace(participants)

	// Then names are sorted case and accent insensitively
	names := lo.Map(sorted, func(p domain.Participant, _ int) string { return p.DisplayName })
	req.Equal([]string{"Alice", "bob", "Émile", "zoé"}, names)

	// And the input slice is untouched
	req.Equal("zoé", participants[0].DisplayName)
}

func TestRoster_Replace_Is_A_Full_Replacement(t *testing.T) {
	req := require.New(t)
	roster := NewRoster(language.French)
	at := time.Now()

	roster.Replace([]domain.Participant{domain.NewParticipant("1", "Alice", at)})
	roster.Replace([]domain.Participant{domain.NewParticipant("2", "Bob", at)})

	req.Len(roster.Snapshot(), 1)
	req.Equal("Bob", roster.Snapshot()[0].DisplayName)

	req.Empty(roster.Replace(nil))
}
