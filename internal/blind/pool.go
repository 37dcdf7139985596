package blind

import "fmt"

// DefaultPool is the ordered label pool. Labels are deliberately opaque
// code-names with no relation to any vendor or model name.
var DefaultPool = []string{
	"Alpha", "Bravo", "Charlie", "Delta", "Echo",
	"Foxtrot", "Golf", "Hotel", "India", "Juliett",
	"Kilo", "Lima", "Mike", "November", "Oscar",
	"Papa", "Quebec", "Romeo", "Sierra", "Tango",
}

// labelAt returns the label for position i. Positions past the end of
// the pool fall back to "Model N" with a 1-based N, so assignment never
// fails and never reuses a label within one exercise.
func labelAt(pool []string, i int) string {
	if i < len(pool) {
		return pool[i]
	}
	return fmt.Sprintf("Model %d", i+1)
}
