// Suoja - Tag-Scoped Protection Reconciler
// Observe. Decide. Converge.
package main

import (
	"github.com/yairfalse/suoja/providers/memory"
)

func main() {
	memory.Register()
	Execute()
}
