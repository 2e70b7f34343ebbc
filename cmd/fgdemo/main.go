// Command fgdemo builds a small deferred-shading frame graph and runs it on
// one of the registered backends.
package main

import (
	"log"

	_ "github.com/gogpu/wgpu/hal/noop"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("fgdemo: %v", err)
	}
}
