package extpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// bridge wraps a running wazero module instance and calls its exported
// resource_* functions with JSON request/response payloads marshaled
// through WASM linear memory.
type bridge struct {
	runtime wazero.Runtime
	module  api.Module
	memory  api.Memory

	malloc api.Function
	free   api.Function

	schema api.Function
	expand api.Function
	probe  api.Function
	diff   api.Function
	lower  api.Function
	apply  api.Function

	timeout time.Duration
}

func newBridge(ctx context.Context, manifest *Manifest, wasmModule []byte, enforcer *capabilityEnforcer, timeout time.Duration) (*bridge, error) {
	runtimeConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("extpoint: instantiate WASI: %w", err)
	}

	builder := runtime.NewHostModuleBuilder("env")
	registerHostFunctions(builder, enforcer)
	if _, err := builder.Instantiate(ctx); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("extpoint: instantiate host module: %w", err)
	}

	module, err := runtime.Instantiate(ctx, wasmModule)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("extpoint: instantiate module %s: %w", manifest.Module, err)
	}

	b := &bridge{runtime: runtime, module: module, memory: module.Memory(), timeout: timeout}
	if b.memory == nil {
		b.Close(ctx)
		return nil, fmt.Errorf("extpoint: module %s does not export memory", manifest.Module)
	}

	required := map[string]*api.Function{
		"malloc":          &b.malloc,
		"free":            &b.free,
		"resource_schema": &b.schema,
		"resource_expand": &b.expand,
		"resource_probe":  &b.probe,
		"resource_diff":   &b.diff,
		"resource_lower":  &b.lower,
		"resource_apply":  &b.apply,
	}
	for name, slot := range required {
		fn := module.ExportedFunction(name)
		if fn == nil {
			b.Close(ctx)
			return nil, fmt.Errorf("extpoint: module %s does not export %s", manifest.Module, name)
		}
		*slot = fn
	}

	return b, nil
}

func (b *bridge) Close(ctx context.Context) error {
	return b.runtime.Close(ctx)
}

func (b *bridge) call(ctx context.Context, fn api.Function, input []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var inputPtr, inputLen uint32
	if len(input) > 0 {
		ptr, err := b.allocate(ctx, uint32(len(input)))
		if err != nil {
			return nil, err
		}
		defer b.deallocate(ctx, ptr)

		if !b.memory.Write(ptr, input) {
			return nil, fmt.Errorf("extpoint: failed to write input to module memory")
		}
		inputPtr, inputLen = ptr, uint32(len(input))
	}

	results, err := fn.Call(ctx, uint64(inputPtr), uint64(inputLen))
	if err != nil {
		return nil, fmt.Errorf("extpoint: call failed: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("extpoint: call returned no results")
	}

	packed := results[0]
	outputPtr := uint32(packed >> 32)
	outputLen := uint32(packed & 0xFFFFFFFF)
	if outputLen == 0 {
		return []byte("{}"), nil
	}

	output, ok := b.memory.Read(outputPtr, outputLen)
	if !ok {
		return nil, fmt.Errorf("extpoint: failed to read output from module memory")
	}
	result := make([]byte, len(output))
	copy(result, output)
	b.deallocate(ctx, outputPtr)
	return result, nil
}

func (b *bridge) allocate(ctx context.Context, size uint32) (uint32, error) {
	results, err := b.malloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("extpoint: malloc failed: %w", err)
	}
	if len(results) == 0 || results[0] == 0 {
		return 0, fmt.Errorf("extpoint: malloc returned null pointer")
	}
	return uint32(results[0]), nil
}

func (b *bridge) deallocate(ctx context.Context, ptr uint32) {
	b.free.Call(ctx, uint64(ptr))
}

// registerHostFunctions exposes capability-gated host functions the module
// can call: http_request (net:outbound) and write_temp_file (fs:temp). No
// host function for reading temp files is exported.
func registerHostFunctions(builder wazero.HostModuleBuilder, enforcer *capabilityEnforcer) {
	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, urlPtr, urlLen, methodPtr, methodLen uint32) uint64 {
			urlBytes, ok := mod.Memory().Read(urlPtr, urlLen)
			if !ok {
				return packError()
			}
			methodBytes, ok := mod.Memory().Read(methodPtr, methodLen)
			if !ok {
				return packError()
			}
			resp, err := enforcer.httpRequest(ctx, string(methodBytes), string(urlBytes), nil)
			if err != nil {
				return packError()
			}
			defer resp.Body.Close()
			return uint64(resp.StatusCode)
		}).
		Export("http_request")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, namePtr, nameLen, dataPtr, dataLen uint32) uint32 {
			nameBytes, ok := mod.Memory().Read(namePtr, nameLen)
			if !ok {
				return 1
			}
			dataBytes, ok := mod.Memory().Read(dataPtr, dataLen)
			if !ok {
				return 1
			}
			if err := enforcer.writeTempFile(string(nameBytes), dataBytes); err != nil {
				return 1
			}
			return 0
		}).
		Export("write_temp_file")
}

func packError() uint64 {
	return uint64(1) << 32
}
