package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"groupchat/internal/model"
)

func TestMultiSink(t *testing.T) {
	var order []string
	record := func(name string) Sink {
		return SinkFunc(func(_ context.Context, e model.Event) {
			order = append(order, name+":"+e.Message.Body)
		})
	}

	m := MultiSink{record("ui"), record("log")}
	m.Deliver(context.Background(), model.Event{Message: model.ChatMessage{Sender: "bob", Body: "hi"}})

	assert.Equal(t, []string{"ui:hi", "log:hi"}, order)
}

func TestChanSinkGivesUpOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// nobody reads the channel, the cancelled context must release Deliver
	ChanSink(make(chan model.Event)).Deliver(ctx, model.Event{})
}
