package workers

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChannelCapacityWorker_Sample(t *testing.T) {
	req := require.New(t)
	inbox := make(chan int, 10)
	for i := range 9 {
		inbox <- i
	}
	events := make(chan string, 4)

	worker := NewChannelCapacityWorker(slog.Default(), []NamedChannel{
		{Name: "inbox", Channel: inbox},
		{Name: "events", Channel: events},
		{Name: "not a channel", Channel: 42},
	}, time.Second)

	ratios := worker.Sample()
	req.InDelta(0.9, ratios["inbox"], 0.001)
	req.InDelta(0.0, ratios["events"], 0.001)
	req.NotContains(ratios, "not a channel")
}
