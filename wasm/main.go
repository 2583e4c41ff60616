//go:build wasm

package main

import (
	"syscall/js"
)

func main() {
	// Export functions to JavaScript
	js.Global().Set("BgrepNewScanner", js.FuncOf(newScanner))
	js.Global().Set("BgrepScan", js.FuncOf(scan))
	js.Global().Set("BgrepScanBatch", js.FuncOf(scanBatch))
	js.Global().Set("BgrepCloseScanner", js.FuncOf(closeScanner))
	js.Global().Set("BgrepCompile", js.FuncOf(compile))

	// Keep WASM running
	<-make(chan struct{})
}
