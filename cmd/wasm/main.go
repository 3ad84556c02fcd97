//go:build js && wasm

package main

import (
	"encoding/json"
	"syscall/js"

	"github.com/inamate/nestbox/internal/engine"
)

var eng *engine.Engine

func main() {
	eng = engine.NewEngine()

	// Create the engine API object
	nestboxEngine := js.Global().Get("Object").New()

	// --- Commands (frontend → engine) ---
	nestboxEngine.Set("loadDocument", js.FuncOf(loadDocument))
	nestboxEngine.Set("loadSampleDocument", js.FuncOf(loadSampleDocument))
	nestboxEngine.Set("setMode", js.FuncOf(setMode))
	nestboxEngine.Set("pointerDown", js.FuncOf(pointerDown))
	nestboxEngine.Set("pointerMove", js.FuncOf(pointerMove))
	nestboxEngine.Set("pointerUp", js.FuncOf(pointerUp))
	nestboxEngine.Set("cancel", js.FuncOf(cancel))
	nestboxEngine.Set("addRandom", js.FuncOf(addRandom))
	nestboxEngine.Set("deleteSelected", js.FuncOf(deleteSelected))

	// --- Queries (frontend ← engine) ---
	nestboxEngine.Set("render", js.FuncOf(render))
	nestboxEngine.Set("hitTest", js.FuncOf(hitTest))
	nestboxEngine.Set("getView", js.FuncOf(getView))
	nestboxEngine.Set("getDocument", js.FuncOf(getDocument))
	nestboxEngine.Set("getSelection", js.FuncOf(getSelection))
	nestboxEngine.Set("getState", js.FuncOf(getState))

	// Register on global scope
	js.Global().Set("nestboxEngine", nestboxEngine)

	// Signal that WASM is ready
	js.Global().Set("nestboxWasmReady", js.ValueOf(true))

	// Keep Go runtime alive
	select {}
}

// --- Command Handlers ---

func loadDocument(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("missing document JSON")
	}
	if err := eng.LoadJSON([]byte(args[0].String())); err != nil {
		return errorResult(err.Error())
	}
	return okResult()
}

func loadSampleDocument(this js.Value, args []js.Value) interface{} {
	if err := eng.LoadSampleDocument(); err != nil {
		return errorResult(err.Error())
	}
	return okResult()
}

func setMode(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("missing mode")
	}
	if err := eng.SetMode(engine.Mode(args[0].String())); err != nil {
		return errorResult(err.Error())
	}
	return okResult()
}

// pointerDown(x, y, offsetTop, offsetLeft). Surface coordinates; the offset
// is where the canvas sits in the surface.
func pointerDown(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("missing pointer position")
	}
	var offset *engine.Offset
	if len(args) >= 4 {
		offset = &engine.Offset{Top: args[2].Float(), Left: args[3].Float()}
	}
	if err := eng.PointerDown(engine.Point{X: args[0].Float(), Y: args[1].Float()}, offset); err != nil {
		return errorResult(err.Error())
	}
	return okResult()
}

func pointerMove(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return nil
	}
	eng.PointerMove(engine.Point{X: args[0].Float(), Y: args[1].Float()})
	return nil
}

func pointerUp(this js.Value, args []js.Value) interface{} {
	if err := eng.PointerUp(); err != nil {
		return errorResult(err.Error())
	}
	return okResult()
}

func cancel(this js.Value, args []js.Value) interface{} {
	eng.Cancel()
	return nil
}

func addRandom(this js.Value, args []js.Value) interface{} {
	count := 1
	if len(args) > 0 && args[0].Type() == js.TypeNumber {
		count = args[0].Int()
	}
	ids, err := eng.AddRandom(count)
	if err != nil {
		return errorResult(err.Error())
	}
	return idsResult(ids)
}

func deleteSelected(this js.Value, args []js.Value) interface{} {
	ids, err := eng.DeleteSelected()
	if err != nil {
		return errorResult(err.Error())
	}
	return idsResult(ids)
}

// --- Query Handlers ---

func render(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.Render())
}

func hitTest(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.Null()
	}
	id := eng.HitTest(args[0].Float(), args[1].Float())
	if id == "" {
		return js.Null()
	}
	return js.ValueOf(id)
}

func getView(this js.Value, args []js.Value) interface{} {
	return toJSON(eng.View())
}

func getDocument(this js.Value, args []js.Value) interface{} {
	return toJSON(eng.Document())
}

func getSelection(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.Selection())
}

func getState(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(string(eng.State()))
}

// --- helpers ---

func okResult() js.Value {
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func errorResult(msg string) js.Value {
	return js.ValueOf(map[string]interface{}{"error": msg})
}

func idsResult(ids []string) js.Value {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return js.ValueOf(map[string]interface{}{"ok": true, "ids": out})
}

func toJSON(v any) js.Value {
	data, err := json.Marshal(v)
	if err != nil {
		return js.ValueOf("{}")
	}
	return js.ValueOf(string(data))
}
