package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotify(t *testing.T) {
	Notify("ignored", "{}")

	var topics, payloads []string
	SetNotifyImpl(func(topic, payload string) {
		topics = append(topics, topic)
		payloads = append(payloads, payload)
	})
	t.Cleanup(func() { SetNotifyImpl(nil) })

	Notify("engine.reloaded", `{"version":1}`)
	NotifyJSON("analysis.done", map[string]string{"ticker": "600000.SH"})
	NotifyJSON("bad", func() {})

	assert.Equal(t, []string{"engine.reloaded", "analysis.done", "bad"}, topics)
	assert.JSONEq(t, `{"ticker":"600000.SH"}`, payloads[1])
	assert.Contains(t, payloads[2], "error")
}
