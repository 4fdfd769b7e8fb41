package pipeline

import "github.com/driftless/driftless/internal/pipelineerr"

func unknownModuleErr(module string, index int) error {
	return pipelineerr.NewUnknownCoreModuleError(module).WithNodeIndex(index)
}
