package paramschema

import "testing"

const testSchema = `
name: string
port: int & >0
`

func TestCrossCheck_AcceptsMatchingShape(t *testing.T) {
	data := map[string]any{"name": "web", "port": 8080}

	if err := CrossCheck(testSchema, data); err != nil {
		t.Errorf("expected matching shape to pass, got %v", err)
	}
}

func TestCrossCheck_RejectsMismatchedShape(t *testing.T) {
	data := map[string]any{"name": "web", "port": -1}

	if err := CrossCheck(testSchema, data); err == nil {
		t.Error("expected a negative port to fail the >0 constraint")
	}
}
