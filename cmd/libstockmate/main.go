// Command libstockmate builds the engine as a C shared library:
//
//	go build -buildmode=c-shared -o libstockmate.so ./cmd/libstockmate
package main

/*
#include <stdlib.h>

// 定义回调函数的函数指针类型
// topic: event
// payload: JSON数据
typedef void (*EventCallback)(char* topic, char* payload);

// Go 不能直接调用 C 函数指针，需通过 C 桥接
static void invokeCallback(EventCallback cb, char* topic, char* payload) {
    if (cb) {
        cb(topic, payload);
    }
}
*/
import "C"
import (
	"sync"
	"unsafe"

	"github.com/dyike/StockMateGo/internal/service"
	"github.com/dyike/StockMateGo/pkg/bridge"
)

var (
	callbackMu     sync.RWMutex
	globalCallback C.EventCallback
)

func init() {
	bridge.SetNotifyImpl(func(topic, payload string) {
		callbackMu.RLock()
		cb := globalCallback
		callbackMu.RUnlock()
		if cb == nil {
			return
		}
		cTopic := C.CString(topic)
		cPayload := C.CString(payload)
		// 必须释放 Go 创建的 C 字符串
		defer C.free(unsafe.Pointer(cTopic))
		defer C.free(unsafe.Pointer(cPayload))

		C.invokeCallback(cb, cTopic, cPayload)
	})
}

//export InitSDK
func InitSDK(workDir *C.char, configJson *C.char) *C.char {
	if err := service.Initialize(C.GoString(workDir), C.GoString(configJson)); err != nil {
		return C.CString("Error: " + err.Error())
	}
	return C.CString("Success")
}

//export RegisterCallback
func RegisterCallback(cb C.EventCallback) {
	callbackMu.Lock()
	globalCallback = cb
	callbackMu.Unlock()
}

//export UpdateConfig
func UpdateConfig(jsonStr *C.char) *C.char {
	if err := service.UpdateConfig(C.GoString(jsonStr)); err != nil {
		return C.CString("Error: " + err.Error())
	}
	return C.CString("Success")
}

//export Call
func Call(method *C.char, params *C.char) *C.char {
	return C.CString(service.Dispatch(C.GoString(method), C.GoString(params)))
}

//export Shutdown
func Shutdown() {
	service.Shutdown()
}

//export FreeString
func FreeString(str *C.char) {
	C.free(unsafe.Pointer(str))
}

func main() {}
