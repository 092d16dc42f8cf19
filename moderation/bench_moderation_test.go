package moderation

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
)

func BenchmarkModerator_Censor(b *testing.B) {
	wordCount := 100_000
	words := make([]string, 0, wordCount)
	for i := range wordCount {
		words = append(words, "word"+letters(i))
	}
	mod, err := NewModerator(append(words, "badger"), replacementChar, logs.GetLoggerFromLevel(slog.LevelError))
	if err != nil {
		b.Fatal(err)
	}
	message := "The b.4.d.g.e.r crossed the road while everybody was chatting about the weather"

	b.ResetTimer()
	for range b.N {
		_, _ = mod.Censor(message)
	}
}

// letters spells i in base 26 so generated words are unique after leet normalization.
func letters(i int) string {
	out := []byte{'a' + byte(i%26)}
	for i /= 26; i > 0; i /= 26 {
		out = append(out, 'a'+byte(i%26))
	}
	return string(out)
}
