// Package bridge forwards service events to the host application embedding the SDK.
package bridge

import (
	"encoding/json"
	"sync"
)

type NotifyFunc func(topic string, payload string)

var (
	mu   sync.RWMutex
	impl NotifyFunc
)

// SetNotifyImpl 由 cgo 入口调用，注入回调实现；传 nil 取消
func SetNotifyImpl(f NotifyFunc) {
	mu.Lock()
	impl = f
	mu.Unlock()
}

// Notify 供 service 层调用，发送事件给 App
func Notify(topic string, payload string) {
	mu.RLock()
	f := impl
	mu.RUnlock()
	if f != nil {
		f(topic, payload)
	}
}

// NotifyJSON marshals v as the payload. Values that fail to marshal are reported as {"error": ...}.
func NotifyJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		payload, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	Notify(topic, string(payload))
}
