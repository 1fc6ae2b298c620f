package plugins

import (
	"context"
	"log/slog"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/appdock/appdock/hub/config"
)

// WasmTemplatePlugin satisfies TemplateContributing by invoking a compiled
// WebAssembly module. The module must export a `template` function taking
// no arguments and returning a packed u64: the high 32 bits are the offset
// of a UTF-8 fragment in the module's linear memory, the low 32 bits its
// length.
type WasmTemplatePlugin struct {
	wasmPath string
	logger   *slog.Logger
}

// NewWasmTemplatePlugin creates a plugin backed by the wasm file at path.
func NewWasmTemplatePlugin(wasmPath string, logger *slog.Logger) *WasmTemplatePlugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &WasmTemplatePlugin{
		wasmPath: wasmPath,
		logger:   logger.With("component", "WasmTemplatePlugin", "path", wasmPath),
	}
}

// Template loads the module and calls its exported template function. Any
// failure yields an empty fragment; the status page renders without this
// plugin's contribution.
func (p *WasmTemplatePlugin) Template(cfg *config.Config) string {
	ctx := context.Background()

	wasmBytes, err := os.ReadFile(p.wasmPath)
	if err != nil {
		p.logger.Error("Failed to read wasm module", "error", err)
		return ""
	}

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	mod, err := rt.Instantiate(ctx, wasmBytes)
	if err != nil {
		p.logger.Error("Failed to instantiate wasm module", "error", err)
		return ""
	}

	fn := mod.ExportedFunction("template")
	if fn == nil {
		p.logger.Error("Wasm module does not export template")
		return ""
	}

	result, err := fn.Call(ctx)
	if err != nil {
		p.logger.Error("Wasm template call failed", "error", err)
		return ""
	}
	if len(result) == 0 {
		return ""
	}

	offset := uint32(result[0] >> 32)
	length := uint32(result[0])
	buf, ok := mod.Memory().Read(offset, length)
	if !ok {
		p.logger.Error("Wasm template returned out-of-range memory", "offset", offset, "length", length)
		return ""
	}
	return string(buf)
}
