//go:build js && wasm
// +build js,wasm

package main

import (
	"fmt"
	"syscall/js"

	"github.com/himanishpuri/VoxGuard/pkg/voxguard/audio"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/features"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorProcessing
	ErrorEmptyAudio
)

var extractor = features.MustExtractor(features.DefaultConfig())

// extractFeatures turns decoded PCM from the Web Audio API into the MFCC
// matrix accepted by POST /api/predict/features.
// Returns: {error: number, data: array | string, rows, cols, computed}
func extractFeatures(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 3 arguments: audioArray, sampleRate, channels")
	}

	audioDataJS := args[0]
	sampleRateJS := args[1]
	channelsJS := args[2]

	if audioDataJS.Type() != js.TypeObject {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray must be an Array or Float32Array")
	}
	if sampleRateJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "sampleRate must be a number")
	}
	if channelsJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "channels must be a number")
	}

	sampleRate := sampleRateJS.Int()
	channels := channelsJS.Int()
	if sampleRate <= 0 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Invalid sample rate: %d", sampleRate))
	}
	if channels < 1 || channels > 8 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Channels must be between 1 and 8, got: %d", channels))
	}

	length := audioDataJS.Length()
	if length == 0 {
		return makeErrorResponse(ErrorEmptyAudio, "audioArray is empty")
	}

	// Only the leading window reaches the model; skip copying the rest.
	keep := audio.SamplesFor(extractor.Config().MaxDuration, sampleRate) * channels
	length = min(length, keep)

	samples := make([]float64, length)
	for i := 0; i < length; i++ {
		val := audioDataJS.Index(i)
		if val.Type() != js.TypeNumber {
			return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("audioArray element %d is not a number", i))
		}
		samples[i] = val.Float()
	}

	w := audio.Waveform{Samples: audio.MixDown(samples, channels), SampleRate: sampleRate}
	m, err := extractor.Extract(w)
	if err != nil {
		return makeErrorResponse(ErrorProcessing, fmt.Sprintf("Feature extraction failed: %v", err))
	}

	data := js.Global().Get("Float32Array").New(len(m.Data))
	for i, v := range m.Data {
		data.SetIndex(i, v)
	}

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", data)
	result.Set("rows", m.Rows)
	result.Set("cols", m.Cols)
	result.Set("computed", m.Computed)
	return result
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")
	logf := func(method, msg string) {
		if !console.IsUndefined() {
			console.Call(method, msg)
		}
	}

	js.Global().Set("extractFeatures", js.FuncOf(extractFeatures))
	logf("log", "extractFeatures registered")

	window := js.Global().Get("window")
	if window.IsUndefined() {
		logf("error", "window object is undefined")
	} else {
		event := js.Global().Get("CustomEvent").New("wasmReady", js.Global().Get("Object").New())
		window.Call("dispatchEvent", event)
	}

	logf("log", "VoxGuard WASM module ready")
	select {}
}
