package paramschema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// CrossCheck re-validates an already-decoded parameter value against an
// independently authored CUE schema. It is a secondary check layered on
// top of Validate — resource kinds that ship a CUE schema alongside their
// Go ParamType definition can catch drift between the two during tests,
// without the hand-written validator ever depending on CUE at runtime.
func CrossCheck(schemaText string, data any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaText)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling cue schema: %w", err)
	}

	encoded := ctx.Encode(data)
	if err := encoded.Err(); err != nil {
		return fmt.Errorf("encoding value for cue cross-check: %w", err)
	}

	unified := schema.Unify(encoded)
	if err := unified.Err(); err != nil {
		return fmt.Errorf("cue schema mismatch: %s", errors.Details(err, nil))
	}
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("cue schema mismatch: %s", errors.Details(err, nil))
	}

	return nil
}
